package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// QueryListResponse wraps array for frontend compatibility.
type QueryListResponse struct {
	Queries []*models.GeneratedQuery `json:"queries"`
}

// ImportQueriesRequest for POST /api/sources/{sid}/queries.
type ImportQueriesRequest struct {
	Queries []models.QueryCandidate `json:"queries"`
}

// AskRequest for POST /api/sources/{sid}/queries/ask.
type AskRequest struct {
	Question string `json:"nl_query"`
}

// QueriesHandler handles query generation, delivery and execution.
type QueriesHandler struct {
	sourceService    services.ExternalSourceService
	schedulerService services.QuerySchedulerService
	executionService services.QueryExecutionService
	logger           *zap.Logger
}

// NewQueriesHandler creates a new queries handler.
func NewQueriesHandler(
	sourceService services.ExternalSourceService,
	schedulerService services.QuerySchedulerService,
	executionService services.QueryExecutionService,
	logger *zap.Logger,
) *QueriesHandler {
	return &QueriesHandler{
		sourceService:    sourceService,
		schedulerService: schedulerService,
		executionService: executionService,
		logger:           logger.Named("queries-handler"),
	}
}

// RegisterRoutes registers the queries handler's routes on the given mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	base := "/api/sources/{sid}/queries"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(scope(h.Current)))
	mux.HandleFunc("GET "+base+"/next", authMiddleware.RequireAuth(scope(h.Next)))
	mux.HandleFunc("GET "+base+"/all", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(scope(h.Import)))
	mux.HandleFunc("POST "+base+"/generate", authMiddleware.RequireAuth(scope(h.Generate)))
	mux.HandleFunc("POST "+base+"/ask", authMiddleware.RequireAuth(scope(h.Ask)))
	mux.HandleFunc("POST "+base+"/{qid}/execute", authMiddleware.RequireAuth(scope(h.Execute)))
}

// sourceRequest resolves the actor and the source path parameter shared by every route.
func (h *QueriesHandler) sourceRequest(w http.ResponseWriter, r *http.Request) (models.Actor, uuid.UUID, bool) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return models.Actor{}, uuid.Nil, false
	}
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return models.Actor{}, uuid.Nil, false
	}
	return actor, sourceID, true
}

// Generate handles POST /api/sources/{sid}/queries/generate.
func (h *QueriesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	actor, sourceID, ok := h.sourceRequest(w, r)
	if !ok {
		return
	}

	queries, err := h.sourceService.GenerateQueries(r.Context(), actor, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to generate queries", h.logger)
		return
	}

	writeOK(w, http.StatusCreated, QueryListResponse{Queries: queries}, h.logger)
}

// Import handles POST /api/sources/{sid}/queries.
func (h *QueriesHandler) Import(w http.ResponseWriter, r *http.Request) {
	actor, sourceID, ok := h.sourceRequest(w, r)
	if !ok {
		return
	}

	var req ImportQueriesRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "missing_queries", "queries is required", h.logger)
		return
	}

	queries, err := h.sourceService.ImportQueries(r.Context(), actor, sourceID, req.Queries)
	if err != nil {
		writeServiceError(w, err, "Failed to import queries", h.logger)
		return
	}

	writeOK(w, http.StatusCreated, QueryListResponse{Queries: queries}, h.logger)
}

// Ask handles POST /api/sources/{sid}/queries/ask.
func (h *QueriesHandler) Ask(w http.ResponseWriter, r *http.Request) {
	actor, sourceID, ok := h.sourceRequest(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	queries, err := h.sourceService.AskNaturalLanguage(r.Context(), actor, sourceID, req.Question)
	if err != nil {
		writeServiceError(w, err, "Failed to translate question", h.logger)
		return
	}

	writeOK(w, http.StatusOK, QueryListResponse{Queries: queries}, h.logger)
}

// Current handles GET /api/sources/{sid}/queries.
// Returns the delivered queries, releasing the first batch on first use.
func (h *QueriesHandler) Current(w http.ResponseWriter, r *http.Request) {
	actor, sourceID, ok := h.sourceRequest(w, r)
	if !ok {
		return
	}

	queries, err := h.schedulerService.CurrentBatch(r.Context(), actor, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to get queries", h.logger)
		return
	}

	writeOK(w, http.StatusOK, QueryListResponse{Queries: queries}, h.logger)
}

// Next handles GET /api/sources/{sid}/queries/next.
func (h *QueriesHandler) Next(w http.ResponseWriter, r *http.Request) {
	actor, sourceID, ok := h.sourceRequest(w, r)
	if !ok {
		return
	}

	queries, err := h.schedulerService.NextBatch(r.Context(), actor, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to release queries", h.logger)
		return
	}

	writeOK(w, http.StatusOK, QueryListResponse{Queries: queries}, h.logger)
}

// List handles GET /api/sources/{sid}/queries/all.
func (h *QueriesHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, sourceID, ok := h.sourceRequest(w, r)
	if !ok {
		return
	}

	queries, err := h.sourceService.ListQueries(r.Context(), actor, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to list queries", h.logger)
		return
	}

	writeOK(w, http.StatusOK, QueryListResponse{Queries: queries}, h.logger)
}

// Execute handles POST /api/sources/{sid}/queries/{qid}/execute.
func (h *QueriesHandler) Execute(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	sourceID, queryID, ok := ParseSourceAndQueryIDs(w, r, h.logger)
	if !ok {
		return
	}

	execution, err := h.executionService.ExecuteStoredQuery(r.Context(), actor, sourceID, queryID)
	if err != nil {
		writeServiceError(w, err, "Failed to execute query", h.logger)
		return
	}

	writeOK(w, http.StatusOK, execution, h.logger)
}
