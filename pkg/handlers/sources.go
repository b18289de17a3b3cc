package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// SourceResponse is the public view of a registered source. The connection
// string never leaves the service.
type SourceResponse struct {
	SourceID  string                `json:"source_id"`
	Dialect   string                `json:"db_type"`
	Domain    string                `json:"domain"`
	Profile   *models.SchemaProfile `json:"schema_profile,omitempty"`
	MinDate   *time.Time            `json:"min_date,omitempty"`
	MaxDate   *time.Time            `json:"max_date,omitempty"`
	CreatedAt string                `json:"created_at"`
	UpdatedAt string                `json:"updated_at"`
}

// UpdateDomainRequest for PATCH domain body.
type UpdateDomainRequest struct {
	Domain string `json:"domain"`
}

func toSourceResponse(src *models.ExternalSource) SourceResponse {
	return SourceResponse{
		SourceID:  src.ID.String(),
		Dialect:   string(src.Dialect),
		Domain:    src.Domain,
		Profile:   src.Profile,
		MinDate:   src.MinDate,
		MaxDate:   src.MaxDate,
		CreatedAt: src.CreatedAt.Format(time.RFC3339),
		UpdatedAt: src.UpdatedAt.Format(time.RFC3339),
	}
}

// SourcesHandler handles external source registration.
type SourcesHandler struct {
	sourceService services.ExternalSourceService
	logger        *zap.Logger
}

// NewSourcesHandler creates a new sources handler.
func NewSourcesHandler(sourceService services.ExternalSourceService, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{
		sourceService: sourceService,
		logger:        logger.Named("sources-handler"),
	}
}

// RegisterRoutes registers the sources handler's routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/sources", authMiddleware.RequireAuth(scope(h.Register)))
	mux.HandleFunc("GET /api/sources/{sid}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("PATCH /api/sources/{sid}/domain", authMiddleware.RequireAuth(scope(h.UpdateDomain)))
}

// Register handles POST /api/sources.
// Profiles the database and replaces any earlier registration of the caller.
func (h *SourcesHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req services.RegisterSourceRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	src, err := h.sourceService.Register(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, err, "Failed to register source", h.logger)
		return
	}

	writeOK(w, http.StatusCreated, toSourceResponse(src), h.logger)
}

// Get handles GET /api/sources/{sid}.
func (h *SourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	src, err := h.sourceService.Get(r.Context(), actor, sourceID)
	if err != nil {
		writeServiceError(w, err, "Failed to get source", h.logger)
		return
	}

	writeOK(w, http.StatusOK, toSourceResponse(src), h.logger)
}

// UpdateDomain handles PATCH /api/sources/{sid}/domain.
func (h *SourcesHandler) UpdateDomain(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}
	sourceID, ok := ParseSourceID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateDomainRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	src, err := h.sourceService.UpdateDomain(r.Context(), actor, sourceID, req.Domain)
	if err != nil {
		writeServiceError(w, err, "Failed to update domain", h.logger)
		return
	}

	writeOK(w, http.StatusOK, toSourceResponse(src), h.logger)
}
