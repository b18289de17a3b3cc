package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// CreateDashboardRequest for POST /api/dashboards.
type CreateDashboardRequest struct {
	Name     string `json:"name"`
	SourceID string `json:"source_id"`
}

// DashboardQueriesRequest for adding or removing dashboard queries.
type DashboardQueriesRequest struct {
	QueryIDs []string `json:"query_ids"`
}

// TimeWindowRequest for POST /api/dashboards/{did}/time-window.
// Dates are accepted as YYYY-MM-DD or RFC 3339.
type TimeWindowRequest struct {
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
}

// DashboardListResponse wraps array for frontend compatibility.
type DashboardListResponse struct {
	Dashboards []*models.Dashboard `json:"dashboards"`
}

// TimeWindowResponse reports each rewritten query.
type TimeWindowResponse struct {
	UpdatedQueries []models.RewriteResult `json:"updated_queries"`
}

// DashboardsHandler handles dashboards, their query links and their chart data.
type DashboardsHandler struct {
	dashboardService  services.DashboardService
	timeWindowService services.TimeWindowService
	logger            *zap.Logger
}

// NewDashboardsHandler creates a new dashboards handler.
func NewDashboardsHandler(
	dashboardService services.DashboardService,
	timeWindowService services.TimeWindowService,
	logger *zap.Logger,
) *DashboardsHandler {
	return &DashboardsHandler{
		dashboardService:  dashboardService,
		timeWindowService: timeWindowService,
		logger:            logger.Named("dashboards-handler"),
	}
}

// RegisterRoutes registers the dashboards handler's routes on the given mux.
func (h *DashboardsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/sources/{sid}/dashboards", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("POST /api/dashboards", authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("DELETE /api/dashboards/{did}", authMiddleware.RequireAuth(scope(h.Delete)))
	mux.HandleFunc("POST /api/dashboards/{did}/queries", authMiddleware.RequireAuth(scope(h.AddQueries)))
	mux.HandleFunc("DELETE /api/dashboards/{did}/queries", authMiddleware.RequireAuth(scope(h.RemoveQueries)))
	mux.HandleFunc("GET /api/dashboards/{did}/chart-data", authMiddleware.RequireAuth(scope(h.ChartData)))
	mux.HandleFunc("POST /api/dashboards/{did}/time-window", authMiddleware.RequireAuth(scope(h.RewriteTimeWindow)))
}

// List handles GET /api/sources/{sid}/dashboards.
func (h *DashboardsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	dashboards, err := h.dashboardService.List(r.Context(), actor, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to list dashboards", h.logger)
		return
	}

	writeOK(w, http.StatusOK, DashboardListResponse{Dashboards: dashboards}, h.logger)
}

// Create handles POST /api/dashboards.
// Returns the existing dashboard when the caller already owns one with that name.
func (h *DashboardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateDashboardRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_source_id", "Invalid source ID format", h.logger)
		return
	}

	dashboard, err := h.dashboardService.CreateOrGet(r.Context(), actor, req.Name, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to create dashboard", h.logger)
		return
	}

	writeOK(w, http.StatusOK, dashboard, h.logger)
}

// Delete handles DELETE /api/dashboards/{did}.
// Linked queries are kept.
func (h *DashboardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.dashboardService.Delete(r.Context(), actor, dashboardID); err != nil {
		writeServiceError(w, err, "Failed to delete dashboard", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddQueries handles POST /api/dashboards/{did}/queries.
func (h *DashboardsHandler) AddQueries(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	var req DashboardQueriesRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	queryIDs, ok := parseUUIDList(w, req.QueryIDs, h.logger)
	if !ok {
		return
	}

	added, err := h.dashboardService.AddQueries(r.Context(), actor, dashboardID, queryIDs)
	if err != nil {
		writeServiceError(w, err, "Failed to add dashboard queries", h.logger)
		return
	}

	writeOK(w, http.StatusOK, QueryListResponse{Queries: added}, h.logger)
}

// RemoveQueries handles DELETE /api/dashboards/{did}/queries.
func (h *DashboardsHandler) RemoveQueries(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	var req DashboardQueriesRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	queryIDs, ok := parseUUIDList(w, req.QueryIDs, h.logger)
	if !ok {
		return
	}

	if err := h.dashboardService.RemoveQueries(r.Context(), actor, dashboardID, queryIDs); err != nil {
		writeServiceError(w, err, "Failed to remove dashboard queries", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChartData handles GET /api/dashboards/{did}/chart-data.
func (h *DashboardsHandler) ChartData(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	data, err := h.dashboardService.ChartData(r.Context(), actor, dashboardID)
	if err != nil {
		writeServiceError(w, err, "Failed to load chart data", h.logger)
		return
	}

	writeOK(w, http.StatusOK, data, h.logger)
}

// RewriteTimeWindow handles POST /api/dashboards/{did}/time-window.
func (h *DashboardsHandler) RewriteTimeWindow(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	var req TimeWindowRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	minDate, err := parseDate(req.MinDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "min_date must be YYYY-MM-DD", h.logger)
		return
	}
	maxDate, err := parseDate(req.MaxDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "max_date must be YYYY-MM-DD", h.logger)
		return
	}

	report, err := h.timeWindowService.RewriteTimeWindow(r.Context(), actor, dashboardID, minDate, maxDate)
	if err != nil {
		writeServiceError(w, err, "Failed to rewrite time window", h.logger)
		return
	}

	writeOK(w, http.StatusOK, TimeWindowResponse{UpdatedQueries: report}, h.logger)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
