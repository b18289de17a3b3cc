package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedQuery is one candidate analytical query for an external source.
// IsSent only ever transitions from false to true.
type GeneratedQuery struct {
	ID              uuid.UUID `json:"id"`
	SourceID        uuid.UUID `json:"source_id"`
	ActorID         string    `json:"actor_id"`
	QueryText       string    `json:"query"`
	Explanation     string    `json:"explanation"`
	Relevance       float64   `json:"relevance"`
	IsTimeBased     bool      `json:"is_time_based"`
	ChartType       string    `json:"chart_type"`
	IsSent          bool      `json:"is_sent"`
	IsUserGenerated bool      `json:"is_user_generated"`
	CreatedAt       time.Time `json:"created_at"`
}

// QueryCandidate is a query as returned by the generation service, before it is stored.
type QueryCandidate struct {
	Query       string  `json:"query"`
	Explanation string  `json:"explanation"`
	Relevance   float64 `json:"relevance"`
	IsTimeBased bool    `json:"is_time_based"`
	ChartType   string  `json:"chart_type"`
}
