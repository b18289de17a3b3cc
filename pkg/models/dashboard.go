package models

import (
	"time"

	"github.com/google/uuid"
)

// Dashboard is a named collection of generated queries. Name is unique per owner.
type Dashboard struct {
	ID        uuid.UUID `json:"id"`
	ActorID   string    `json:"actor_id"`
	RoleID    string    `json:"role_id"`
	SourceID  uuid.UUID `json:"source_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnedBy reports whether actor owns the dashboard.
func (d *Dashboard) OwnedBy(actor Actor) bool {
	return d.ActorID == actor.ActorID
}

// DashboardQueryLink associates a dashboard with a query it references but does not own.
type DashboardQueryLink struct {
	ID          uuid.UUID `json:"id"`
	DashboardID uuid.UUID `json:"dashboard_id"`
	QueryID     uuid.UUID `json:"query_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChartEntry is one successfully executed dashboard query.
type ChartEntry struct {
	QueryID     uuid.UUID `json:"query_id"`
	QueryText   string    `json:"query_text"`
	Explanation string    `json:"explanation"`
	Result      *Series   `json:"result"`
	ChartType   string    `json:"chart_type"`
}

type DashboardChartData struct {
	DashboardID uuid.UUID    `json:"dashboard_id"`
	ChartData   []ChartEntry `json:"chart_data"`
}

// RewriteResult reports the outcome of rewriting one time-based query.
type RewriteResult struct {
	QueryID       uuid.UUID `json:"query_id"`
	OriginalQuery string    `json:"original_query"`
	UpdatedQuery  string    `json:"updated_query,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}
