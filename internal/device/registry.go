package device

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxNicknameLength bounds the owner-chosen device name.
const maxNicknameLength = 64

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Geolocator resolves coordinates to a named place.
type Geolocator interface {
	Locate(ctx context.Context, lat, long float64) (Place, error)
}

// GeolocatorFunc adapts a function to the Geolocator interface.
type GeolocatorFunc func(ctx context.Context, lat, long float64) (Place, error)

// Locate calls f.
func (f GeolocatorFunc) Locate(ctx context.Context, lat, long float64) (Place, error) {
	return f(ctx, lat, long)
}

// Registry registers devices and answers ownership lookups.
// All public methods are safe for concurrent use.
type Registry struct {
	repo   Repository
	geo    Geolocator
	newID  func() string
	now    func() time.Time
	logger Logger
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository, geo Geolocator) *Registry {
	return &Registry{
		repo:   repo,
		geo:    geo,
		newID:  uuid.NewString,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register creates a device owned by ownerID at the given coordinates.
// The location name and key are resolved before anything is stored, so a
// failed lookup leaves no device behind. BatteryLife starts unknown.
func (r *Registry) Register(ctx context.Context, ownerID, nickname string, lat, long float64) (*Device, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	nickname = strings.TrimSpace(nickname)
	if err := validateRegistration(nickname, lat, long); err != nil {
		return nil, err
	}

	place, err := r.geo.Locate(ctx, lat, long)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeolocation, err)
	}

	d := &Device{
		DeviceID:    r.newID(),
		Nickname:    nickname,
		BatteryLife: UnknownBatteryLife,
		Location: Location{
			Lat:          lat,
			Long:         long,
			LocationName: place.Name,
			LocationKey:  place.Key,
		},
		OwnerID:   ownerID,
		CreatedAt: r.now().UTC().Truncate(time.Second),
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	r.logger.Info("device registered", "device_id", d.DeviceID, "owner_id", ownerID, "location_key", place.Key)
	return d, nil
}

// Lookup returns the devices owned by ownerID whose ID is deviceID. The
// result is empty, never an error, when the device is missing or belongs
// to someone else. An empty deviceID returns all of the owner's devices.
func (r *Registry) Lookup(ctx context.Context, deviceID, ownerID string) ([]Device, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}
	return r.repo.ListByOwner(ctx, ownerID, deviceID)
}

// Exists reports whether deviceID belongs to any owner. Ingestion uses it
// to drop uploads from devices that were never registered.
func (r *Registry) Exists(ctx context.Context, deviceID string) (bool, error) {
	if strings.TrimSpace(deviceID) == "" {
		return false, nil
	}
	return r.repo.Exists(ctx, deviceID)
}

// List returns all devices owned by ownerID.
func (r *Registry) List(ctx context.Context, ownerID string) ([]Device, error) {
	return r.Lookup(ctx, "", ownerID)
}

func validateRegistration(nickname string, lat, long float64) error {
	switch {
	case nickname == "":
		return fmt.Errorf("%w: nickname is required", ErrInvalidDevice)
	case utf8.RuneCountInString(nickname) > maxNicknameLength:
		return fmt.Errorf("%w: nickname longer than %d characters", ErrInvalidDevice, maxNicknameLength)
	case math.IsNaN(lat) || lat < -90 || lat > 90:
		return fmt.Errorf("%w: latitude out of range", ErrInvalidDevice)
	case math.IsNaN(long) || long < -180 || long > 180:
		return fmt.Errorf("%w: longitude out of range", ErrInvalidDevice)
	}
	return nil
}
