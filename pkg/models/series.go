package models

import "github.com/google/uuid"

// SeriesPoint is one row of a chart series.
type SeriesPoint struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Series is the 2-column chart shape produced from arbitrary tabular output.
type Series struct {
	Data      []SeriesPoint `json:"data"`
	XAxisName string        `json:"xAxisName"`
	YAxisName string        `json:"yAxisName"`
}

// ExecutionResult holds either a Series or an error message, never both.
type ExecutionResult struct {
	Series *Series `json:"series,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Failed reports whether execution produced an error instead of a series.
func (r ExecutionResult) Failed() bool {
	return r.Error != ""
}

// StoredQueryExecution is the result of executing a persisted GeneratedQuery.
type StoredQueryExecution struct {
	QueryID   uuid.UUID       `json:"id"`
	ChartType string          `json:"chart_type"`
	Report    string          `json:"report"`
	Result    ExecutionResult `json:"result"`
}
