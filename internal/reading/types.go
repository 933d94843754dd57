package reading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved attribute names in the JSON form of a reading. Payload keys
// with these names are never treated as measurements.
const (
	AttrID              = "Id"
	AttrDeviceID        = "DeviceId"
	AttrTimestamp       = "Timestamp"
	AttrExpireTimestamp = "ExpireTimestamp"
)

// SensorReading is one ingested measurement set from a device.
//
// Readings are written once by the ingestion path and never updated.
// Expired rows are removed by the sweeper.
type SensorReading struct {
	ID              string
	DeviceID        string
	Timestamp       int64 // seconds since epoch, server clock
	ExpireTimestamp int64

	// Fields holds the numeric sensor values (temperature, humidity,
	// light channels, ...) as uploaded by the device.
	Fields map[string]float64
}

// Key returns the store position of the reading.
func (r SensorReading) Key() Key {
	return Key{ID: r.ID, DeviceID: r.DeviceID, Timestamp: r.Timestamp}
}

// MarshalJSON flattens Fields next to the fixed attributes, so a reading
// serialises as {"Id":..., "DeviceId":..., "temperature": 21.5, ...}.
func (r SensorReading) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteByte('{')
	fixed := []struct {
		name  string
		value any
	}{
		{AttrID, r.ID},
		{AttrDeviceID, r.DeviceID},
		{AttrTimestamp, r.Timestamp},
		{AttrExpireTimestamp, r.ExpireTimestamp},
	}
	for i, attr := range fixed {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(&buf, attr.name, attr.value); err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		buf.WriteByte(',')
		if err := writeMember(&buf, name, r.Fields[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, name string, value any) error {
	k, err := json.Marshal(name)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON is the inverse of MarshalJSON. Non-numeric extra members
// are ignored.
func (r *SensorReading) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out SensorReading
	decode := func(name string, dst any) error {
		v, ok := raw[name]
		if !ok {
			return nil
		}
		delete(raw, name)
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("decoding %s: %w", name, err)
		}
		return nil
	}
	if err := decode(AttrID, &out.ID); err != nil {
		return err
	}
	if err := decode(AttrDeviceID, &out.DeviceID); err != nil {
		return err
	}
	if err := decode(AttrTimestamp, &out.Timestamp); err != nil {
		return err
	}
	if err := decode(AttrExpireTimestamp, &out.ExpireTimestamp); err != nil {
		return err
	}

	for name, v := range raw {
		var f float64
		if json.Unmarshal(v, &f) != nil {
			continue
		}
		if out.Fields == nil {
			out.Fields = make(map[string]float64, len(raw))
		}
		out.Fields[name] = f
	}

	*r = out
	return nil
}

// Key is the store's native position marker: the partition (DeviceID),
// the sort key (Timestamp) and the item's unique ID as a tiebreaker.
type Key struct {
	ID        string `json:"Id"`
	DeviceID  string `json:"DeviceId"`
	Timestamp int64  `json:"Timestamp"`
}

// Order is the direction a query walks the Timestamp index.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// TimeRange is an inclusive [Start, End] window in epoch seconds.
type TimeRange struct {
	Start int64
	End   int64
}

// Query is a key-condition query against one device's readings.
type Query struct {
	DeviceID string

	// Between restricts Timestamp to an inclusive window. Nil means unbounded.
	Between *TimeRange

	Order Order

	// Limit caps the page. Zero means the store's maximum page size;
	// values above the maximum are clamped.
	Limit int

	// ExclusiveStartKey resumes after this position. It must belong to DeviceID.
	ExclusiveStartKey *Key
}

// Page is one page of query results. LastEvaluatedKey is set only when
// more items exist beyond this page.
type Page struct {
	Items            []SensorReading
	LastEvaluatedKey *Key
}

// Store is the time-ordered persistence for sensor readings.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores a new reading. Returns ErrDuplicateReading if the ID exists.
	Put(ctx context.Context, r SensorReading) error

	// Query runs a key-condition query.
	//
	// Returns:
	//   - *Page: Items in the requested order plus a continuation key
	//   - error: wraps ErrQueryRejected for malformed queries and
	//     ErrStoreUnavailable for infrastructure failures
	Query(ctx context.Context, q Query) (*Page, error)

	// DeleteExpired removes readings whose ExpireTimestamp is before now
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, now int64) (int64, error)
}
