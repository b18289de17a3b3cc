// Package jsonutil decodes JSON produced by LLM-backed services, which often
// emit numbers and booleans as strings or the other way round.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var null = []byte("null")

// FlexibleStringValue converts a json.RawMessage to a string, accepting
// numbers and booleans in place of strings. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal json.Number
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if i, err := numVal.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return numVal.String()
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return strconv.FormatBool(boolVal)
	}

	return string(raw)
}

// FlexibleString decodes any scalar into a string.
type FlexibleString string

func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	*s = FlexibleString(FlexibleStringValue(data))
	return nil
}

// FlexibleFloat accepts 0.8, "0.8" and "80%". Null and "" decode to zero.
type FlexibleFloat float64

func (f *FlexibleFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, null) {
		*f = 0
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexibleFloat(num)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot decode %s as number", data)
	}
	str = strings.TrimSpace(str)
	if str == "" {
		*f = 0
		return nil
	}

	percent := strings.HasSuffix(str, "%")
	num, err := strconv.ParseFloat(strings.TrimSuffix(str, "%"), 64)
	if err != nil {
		return fmt.Errorf("cannot decode %q as number: %w", str, err)
	}
	if percent {
		num /= 100
	}
	*f = FlexibleFloat(num)
	return nil
}

// FlexibleBool accepts true, "true", "yes", "1" and 1, plus their negatives.
type FlexibleBool bool

func (b *FlexibleBool) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, null) {
		*b = false
		return nil
	}

	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexibleBool(v)
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*b = num != 0
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot decode %s as boolean", data)
	}
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "true", "yes", "y", "1", "t":
		*b = true
	case "false", "no", "n", "0", "f", "":
		*b = false
	default:
		return fmt.Errorf("cannot decode %q as boolean", str)
	}
	return nil
}
