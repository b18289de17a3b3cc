package datasource

import (
	"strings"
	"time"
)

// temporalLayouts are tried in order when a driver hands back a date as text.
var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseTemporal interprets a driver value as a point in time.
func ParseTemporal(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, !val.IsZero()
	case []byte:
		return parseTemporalString(string(val))
	case string:
		return parseTemporalString(val)
	default:
		return time.Time{}, false
	}
}

func parseTemporalString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range temporalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RangeAccumulator folds per-column MIN/MAX pairs into a global range.
// Pairs with a null side are skipped.
type RangeAccumulator struct {
	min, max *time.Time
}

// Add folds one (min, max) pair into the range.
func (a *RangeAccumulator) Add(minValue, maxValue any) {
	lo, okLo := ParseTemporal(minValue)
	hi, okHi := ParseTemporal(maxValue)
	if !okLo || !okHi {
		return
	}
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	if a.min == nil || lo.Before(*a.min) {
		a.min = &lo
	}
	if a.max == nil || hi.After(*a.max) {
		a.max = &hi
	}
}

// Range returns the accumulated bounds; both nil when nothing was added.
func (a *RangeAccumulator) Range() *TemporalRange {
	return &TemporalRange{Min: a.min, Max: a.max}
}

// BuildRangeQuery builds the single UNION ALL statement used by catalog
// dialects: one "SELECT MIN(c), MAX(c) FROM t" per temporal column.
// castExpr wraps a quoted column so every branch yields the same type.
func BuildRangeQuery(columns []TemporalColumn, quoteTable func(TableMetadata) string, quoteColumn func(string) string, castExpr func(string) string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		col := castExpr(quoteColumn(c.Column))
		parts = append(parts, "SELECT MIN("+col+") AS min_value, MAX("+col+") AS max_value FROM "+quoteTable(c.Table))
	}
	return strings.Join(parts, " UNION ALL ")
}
