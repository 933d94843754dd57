package query

import "strings"

// Range selects a recency window page size.
type Range string

// Range selectors and their page caps.
const (
	RangeRecent Range = "RECENT"
	RangeHourly Range = "HOURLY"
	RangeDaily  Range = "DAILY"
)

var rangeLimits = map[Range]int{
	RangeRecent: 1,
	RangeHourly: 4,
	RangeDaily:  96,
}

// Limit returns the page cap for r and whether r is a known selector.
func (r Range) Limit() (int, bool) {
	n, ok := rangeLimits[r]
	return n, ok
}

// MaxRangeLimit returns the largest page cap of any selector. A store whose
// page bound is smaller would truncate that selector's pages.
func MaxRangeLimit() int {
	largest := 0
	for _, n := range rangeLimits {
		largest = max(largest, n)
	}
	return largest
}

// ParseRange normalises a selector from a query string. The empty string
// means no selector.
func ParseRange(s string) Range {
	return Range(strings.ToUpper(strings.TrimSpace(s)))
}

// Filter is a reading request as received from a client.
type Filter struct {
	DeviceID       string
	StartTimestamp *int64
	EndTimestamp   *int64
	Range          Range
	Page           string
}

func (f Filter) hasTimestamps() bool {
	return f.StartTimestamp != nil || f.EndTimestamp != nil
}
