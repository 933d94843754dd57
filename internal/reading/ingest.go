package reading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRetention is how long a reading is kept after ingestion.
const DefaultRetention = 2 * 365 * 24 * time.Hour

// maxDeviceIDLength bounds device IDs taken from topic names.
const maxDeviceIDLength = 128

// Logger defines the logging interface used by the ingestion path.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceChecker reports whether a device has been registered.
type DeviceChecker interface {
	Exists(ctx context.Context, deviceID string) (bool, error)
}

// Observer is notified after a reading has been stored. Observers run on
// the ingestion goroutine and must not block.
type Observer func(r SensorReading)

// Ingestor turns device uploads into stored readings.
//
// It stamps each upload with a fresh ID, the server time and the expiry
// horizon, stores it, then fans it out to observers (time-series mirror,
// live stream).
type Ingestor struct {
	store     Store
	devices   DeviceChecker
	retention time.Duration
	now       func() time.Time
	newID     func() string
	logger    Logger

	mu        sync.RWMutex
	observers []Observer
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithRetention overrides DefaultRetention.
func WithRetention(d time.Duration) IngestorOption {
	return func(i *Ingestor) {
		if d > 0 {
			i.retention = d
		}
	}
}

// WithClock injects the time source used for Timestamp.
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

// WithIDGenerator injects the reading ID source.
func WithIDGenerator(gen func() string) IngestorOption {
	return func(i *Ingestor) { i.newID = gen }
}

// WithLogger sets the ingestion logger.
func WithLogger(l Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor creates an Ingestor writing to store. Uploads for devices
// that devices does not know are rejected.
func NewIngestor(store Store, devices DeviceChecker, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		store:     store,
		devices:   devices,
		retention: DefaultRetention,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Observe registers fn to be called for every stored reading.
func (i *Ingestor) Observe(fn Observer) {
	i.mu.Lock()
	i.observers = append(i.observers, fn)
	i.mu.Unlock()
}

// Ingest parses one upload and stores it.
//
// Parameters:
//   - ctx: Context for the store write
//   - deviceID: Device the upload came from (taken from the topic, never the payload)
//   - payload: JSON object of sensor values
//
// Returns:
//   - *SensorReading: The stored reading
//   - error: ErrInvalidDeviceID, ErrInvalidPayload, ErrNoMeasurements,
//     ErrUnknownDevice, or a lookup or store error
func (i *Ingestor) Ingest(ctx context.Context, deviceID string, payload []byte) (*SensorReading, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}

	fields, err := parseMeasurements(payload)
	if err != nil {
		return nil, err
	}

	known, err := i.devices.Exists(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("checking device %s: %w", deviceID, err)
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}

	ts := i.now().Unix()
	r := SensorReading{
		ID:              i.newID(),
		DeviceID:        deviceID,
		Timestamp:       ts,
		ExpireTimestamp: ts + int64(i.retention/time.Second),
		Fields:          fields,
	}

	if err := i.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("storing reading for %s: %w", deviceID, err)
	}

	i.logger.Debug("reading stored", "device_id", deviceID, "id", r.ID, "fields", len(fields))

	i.mu.RLock()
	observers := i.observers
	i.mu.RUnlock()
	for _, fn := range observers {
		fn(r)
	}

	return &r, nil
}

// HandleUpload adapts Ingest to the MQTT message handler shape. The
// device ID is resolved from the topic by deviceFromTopic.
func (i *Ingestor) HandleUpload(deviceFromTopic func(topic string) (string, bool)) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		deviceID, ok := deviceFromTopic(topic)
		if !ok {
			i.logger.Warn("upload on unexpected topic", "topic", topic)
			return fmt.Errorf("%w: topic %q", ErrInvalidDeviceID, topic)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := i.Ingest(ctx, deviceID, payload); err != nil {
			if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrNoMeasurements) ||
				errors.Is(err, ErrInvalidDeviceID) || errors.Is(err, ErrUnknownDevice) {
				i.logger.Warn("rejected sensor upload", "device_id", deviceID, "error", err)
			} else {
				i.logger.Error("failed to ingest sensor upload", "device_id", deviceID, "error", err)
			}
			return err
		}
		return nil
	}
}

func validateDeviceID(id string) error {
	if id == "" || len(id) > maxDeviceIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q contains topic separators", ErrInvalidDeviceID, id)
	}
	return nil
}

// parseMeasurements extracts numeric members of a JSON object. Reserved
// attribute names and non-numeric values are skipped.
func parseMeasurements(payload []byte) (map[string]float64, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidPayload)
	}

	fields := make(map[string]float64, len(raw))
	for name, v := range raw {
		switch name {
		case AttrID, AttrDeviceID, AttrTimestamp, AttrExpireTimestamp:
			continue
		}
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		f, err := n.Float64()
		if err != nil {
			continue
		}
		fields[name] = f
	}

	if len(fields) == 0 {
		return nil, ErrNoMeasurements
	}
	return fields, nil
}
