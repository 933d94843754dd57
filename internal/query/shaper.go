package query

import (
	"fmt"
	"time"

	"github.com/flora-iot/flora-core/internal/reading"
)

// DefaultLookback is the recency window for range queries: one Julian
// year in seconds.
const DefaultLookback int64 = 31_557_600

// Shaper turns a validated Filter into a store query.
type Shaper struct {
	// Lookback is the width of the recency window in seconds.
	Lookback int64
}

// ShapeQuery shapes f for deviceID with the default lookback.
func ShapeQuery(f Filter, deviceID string, now time.Time) (reading.Query, error) {
	return Shaper{Lookback: DefaultLookback}.Shape(f, deviceID, now)
}

// Shape validates f and builds the store query for deviceID.
//
// Three shapes are accepted:
//   - explicit StartTimestamp and EndTimestamp: inclusive window, oldest first
//   - neither timestamps nor range: the device's whole history, oldest first
//   - a Range selector: the last Lookback seconds, newest first, capped
//     at the selector's page size
//
// A page token resumes any of them, provided it was issued for the same
// read order.
func (s Shaper) Shape(f Filter, deviceID string, now time.Time) (reading.Query, error) {
	limit, known := f.Range.Limit()
	switch {
	case f.Range != "" && !known:
		return reading.Query{}, fmt.Errorf("%w: unknown range %q", ErrInvalidFilter, f.Range)
	case f.Range != "" && f.hasTimestamps():
		return reading.Query{}, fmt.Errorf("%w: range cannot be combined with explicit timestamps", ErrInvalidFilter)
	case (f.StartTimestamp == nil) != (f.EndTimestamp == nil):
		return reading.Query{}, fmt.Errorf("%w: incomplete time range", ErrInvalidFilter)
	case f.StartTimestamp != nil && *f.StartTimestamp > *f.EndTimestamp:
		return reading.Query{}, fmt.Errorf("%w: start after end", ErrInvalidFilter)
	}

	q := reading.Query{DeviceID: deviceID, Order: reading.Ascending}

	switch {
	case f.Range != "":
		lookback := s.Lookback
		if lookback <= 0 {
			lookback = DefaultLookback
		}
		end := now.Unix()
		q.Between = &reading.TimeRange{Start: end - lookback, End: end}
		q.Order = reading.Descending
		q.Limit = limit
	case f.StartTimestamp != nil:
		q.Between = &reading.TimeRange{Start: *f.StartTimestamp, End: *f.EndTimestamp}
	}

	if f.Page != "" {
		key, order, err := DecodeCursor(f.Page)
		if err != nil || key.DeviceID != deviceID {
			return reading.Query{}, fmt.Errorf("%w: %w", ErrInvalidFilter, errMalformedCursor)
		}
		if order != q.Order {
			return reading.Query{}, fmt.Errorf("%w: page token was issued for %s order, request reads %s",
				ErrInvalidFilter, order, q.Order)
		}
		q.ExclusiveStartKey = key
	}
	return q, nil
}
