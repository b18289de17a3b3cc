package datasource

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeValue converts a driver value into something encoding/json renders
// sensibly: byte slices become strings, numeric strings become float64, and
// time.Time is kept as-is.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeString(string(val))
	case string:
		return normalizeString(val)
	case float32:
		return float64(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case int8:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	default:
		return v
	}
}

func normalizeString(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !looksNumeric(trimmed) {
		return s
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	return f
}

// looksNumeric rejects strings ParseFloat would accept but that are not
// decimal literals, such as "NaN", "Inf" or hex floats.
func looksNumeric(s string) bool {
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case (r == '-' || r == '+') && i == 0:
		case r == 'e' || r == 'E':
		case (r == '-' || r == '+') && i > 0 && (s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return true
}

// Stringify renders a driver value as a chart label.
// Dates at midnight render as YYYY-MM-DD, other times as RFC 3339.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}
