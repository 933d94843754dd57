package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flora-iot/flora-core/internal/infrastructure/config"
	"github.com/flora-iot/flora-core/internal/reading"
)

func i64(v int64) *int64 { return &v }

func TestShapeQuery_Modes(t *testing.T) {
	now := time.Unix(40_000_000, 0)
	newest := *EncodeCursor(&reading.Key{ID: "r1", DeviceID: "d1", Timestamp: 300}, reading.Descending)
	oldest := *EncodeCursor(&reading.Key{ID: "r1", DeviceID: "d1", Timestamp: 300}, reading.Ascending)

	tests := []struct {
		name   string
		filter Filter
		want   reading.Query
	}{
		{
			name:   "explicit range ascending",
			filter: Filter{StartTimestamp: i64(200), EndTimestamp: i64(400)},
			want: reading.Query{
				DeviceID: "d1",
				Between:  &reading.TimeRange{Start: 200, End: 400},
				Order:    reading.Ascending,
			},
		},
		{
			name:   "equal bounds",
			filter: Filter{StartTimestamp: i64(5), EndTimestamp: i64(5)},
			want: reading.Query{
				DeviceID: "d1",
				Between:  &reading.TimeRange{Start: 5, End: 5},
				Order:    reading.Ascending,
			},
		},
		{
			name:   "no filter",
			filter: Filter{},
			want:   reading.Query{DeviceID: "d1", Order: reading.Ascending},
		},
		{
			name:   "recent",
			filter: Filter{Range: RangeRecent},
			want: reading.Query{
				DeviceID: "d1",
				Between:  &reading.TimeRange{Start: 40_000_000 - DefaultLookback, End: 40_000_000},
				Order:    reading.Descending,
				Limit:    1,
			},
		},
		{
			name:   "daily with cursor",
			filter: Filter{Range: RangeDaily, Page: newest},
			want: reading.Query{
				DeviceID:          "d1",
				Between:           &reading.TimeRange{Start: 40_000_000 - DefaultLookback, End: 40_000_000},
				Order:             reading.Descending,
				Limit:             96,
				ExclusiveStartKey: &reading.Key{ID: "r1", DeviceID: "d1", Timestamp: 300},
			},
		},
		{
			name:   "cursor without range",
			filter: Filter{Page: oldest},
			want: reading.Query{
				DeviceID:          "d1",
				Order:             reading.Ascending,
				ExclusiveStartKey: &reading.Key{ID: "r1", DeviceID: "d1", Timestamp: 300},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShapeQuery(tt.filter, "d1", now)
			if err != nil {
				t.Fatalf("ShapeQuery() error = %v", err)
			}
			assertQuery(t, got, tt.want)
		})
	}
}

func TestShapeQuery_Rejections(t *testing.T) {
	now := time.Unix(40_000_000, 0)
	otherDevice := *EncodeCursor(&reading.Key{ID: "r1", DeviceID: "d2", Timestamp: 300}, reading.Descending)
	ascending := *EncodeCursor(&reading.Key{ID: "r1", DeviceID: "d1", Timestamp: 300}, reading.Ascending)
	descending := *EncodeCursor(&reading.Key{ID: "r1", DeviceID: "d1", Timestamp: 300}, reading.Descending)

	tests := []struct {
		name   string
		filter Filter
		reason string
	}{
		{"unknown range", Filter{Range: "WEEKLY"}, "unknown range"},
		{"unknown range wins over bad cursor", Filter{Range: "WEEKLY", Page: "%%%"}, "unknown range"},
		{"range with timestamps", Filter{Range: RangeDaily, StartTimestamp: i64(1), EndTimestamp: i64(2)}, "range cannot be combined"},
		{"range with start only", Filter{Range: RangeDaily, StartTimestamp: i64(1)}, "range cannot be combined"},
		{"start only", Filter{StartTimestamp: i64(1)}, "incomplete time range"},
		{"end only", Filter{EndTimestamp: i64(1)}, "incomplete time range"},
		{"inverted", Filter{StartTimestamp: i64(9), EndTimestamp: i64(1)}, "start after end"},
		{"garbage cursor", Filter{Page: "%%%"}, "malformed page token"},
		{"cursor for another device", Filter{Range: RangeRecent, Page: otherDevice}, "malformed page token"},
		{"ascending cursor on range request", Filter{Range: RangeHourly, Page: ascending}, "issued for asc order"},
		{"descending cursor on window request", Filter{StartTimestamp: i64(1), EndTimestamp: i64(9), Page: descending}, "issued for desc order"},
		{"descending cursor on history request", Filter{Page: descending}, "issued for desc order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ShapeQuery(tt.filter, "d1", now)
			if !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("ShapeQuery() error = %v, want ErrInvalidFilter", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("ShapeQuery() error = %q, want reason %q", err, tt.reason)
			}
		})
	}
}

func TestShaper_CustomLookback(t *testing.T) {
	q, err := Shaper{Lookback: 60}.Shape(Filter{Range: RangeHourly}, "d1", time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("Shape() error = %v", err)
	}
	if q.Between == nil || q.Between.Start != 940 || q.Between.End != 1000 || q.Limit != 4 {
		t.Errorf("Shape() = %+v, want window [940,1000] limit 4", q)
	}
}

func TestParseRange(t *testing.T) {
	if got := ParseRange(" daily "); got != RangeDaily {
		t.Errorf("ParseRange() = %q, want DAILY", got)
	}
	if got := ParseRange(""); got != "" {
		t.Errorf("ParseRange(\"\") = %q, want empty", got)
	}
}

func TestMaxRangeLimit(t *testing.T) {
	if got := MaxRangeLimit(); got != 96 {
		t.Errorf("MaxRangeLimit() = %d, want 96", got)
	}
	// The smallest page bound the config accepts must still hold a full
	// page for every selector.
	if config.MinReadingsPageSize < MaxRangeLimit() {
		t.Errorf("config.MinReadingsPageSize = %d, below largest range cap %d",
			config.MinReadingsPageSize, MaxRangeLimit())
	}
}

func assertQuery(t *testing.T, got, want reading.Query) {
	t.Helper()
	if got.DeviceID != want.DeviceID || got.Order != want.Order || got.Limit != want.Limit {
		t.Errorf("query = %+v, want %+v", got, want)
	}
	switch {
	case (got.Between == nil) != (want.Between == nil):
		t.Errorf("Between = %+v, want %+v", got.Between, want.Between)
	case got.Between != nil && *got.Between != *want.Between:
		t.Errorf("Between = %+v, want %+v", *got.Between, *want.Between)
	}
	switch {
	case (got.ExclusiveStartKey == nil) != (want.ExclusiveStartKey == nil):
		t.Errorf("ExclusiveStartKey = %+v, want %+v", got.ExclusiveStartKey, want.ExclusiveStartKey)
	case got.ExclusiveStartKey != nil && *got.ExclusiveStartKey != *want.ExclusiveStartKey:
		t.Errorf("ExclusiveStartKey = %+v, want %+v", *got.ExclusiveStartKey, *want.ExclusiveStartKey)
	}
}
