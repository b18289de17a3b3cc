package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{name: "string value", input: json.RawMessage(`"hello"`), want: "hello"},
		{name: "integer value", input: json.RawMessage(`42`), want: "42"},
		{name: "float value", input: json.RawMessage(`3.14`), want: "3.14"},
		{name: "boolean true", input: json.RawMessage(`true`), want: "true"},
		{name: "null value", input: json.RawMessage(`null`), want: ""},
		{name: "nil raw message", input: nil, want: ""},
		{name: "large integer preserves precision", input: json.RawMessage(`9007199254740993`), want: "9007199254740993"},
		{name: "nested object falls back to raw string", input: json.RawMessage(`{"key":"value"}`), want: `{"key":"value"}`},
		{name: "negative integer", input: json.RawMessage(`-7`), want: "-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlexibleStringValue(tt.input))
		})
	}
}

func TestFlexibleFloat(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: `0.75`, want: 0.75},
		{input: `"0.75"`, want: 0.75},
		{input: `" 0.5 "`, want: 0.5},
		{input: `"85%"`, want: 0.85},
		{input: `1`, want: 1},
		{input: `null`, want: 0},
		{input: `""`, want: 0},
		{input: `"high"`, wantErr: true},
		{input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f FlexibleFloat
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, float64(f), 1e-9)
		})
	}
}

func TestFlexibleBool(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{input: `true`, want: true},
		{input: `false`, want: false},
		{input: `"true"`, want: true},
		{input: `"Yes"`, want: true},
		{input: `"no"`, want: false},
		{input: `1`, want: true},
		{input: `0`, want: false},
		{input: `"1"`, want: true},
		{input: `null`, want: false},
		{input: `"maybe"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var b FlexibleBool
			err := json.Unmarshal([]byte(tt.input), &b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bool(b))
		})
	}
}

func TestFlexibleFields_InStruct(t *testing.T) {
	var got struct {
		Query       FlexibleString `json:"query"`
		Relevance   FlexibleFloat  `json:"relevance"`
		IsTimeBased FlexibleBool   `json:"is_time_based"`
	}
	err := json.Unmarshal([]byte(`{"query":"SELECT 1, 2","relevance":"0.9","is_time_based":"false"}`), &got)
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1, 2", string(got.Query))
	assert.InDelta(t, 0.9, float64(got.Relevance), 1e-9)
	assert.False(t, bool(got.IsTimeBased))
}
