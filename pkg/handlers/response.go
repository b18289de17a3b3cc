package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ApiResponse wraps data in the format expected by the frontend.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ScopeMiddleware binds per-request resources (the metadata connection) to the request.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeOK writes data in the ApiResponse envelope.
func writeOK(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, code, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// errorMapping is one row of the service error to HTTP status table.
type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: ErrNothingAvailable and the dashboard errors are checked
// before the generic sentinels they could be confused with.
var errorMappings = []errorMapping{
	{apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperrors.ErrQuotaExhausted, http.StatusTooManyRequests, "quota_exhausted"},
	{apperrors.ErrNothingAvailable, http.StatusNotFound, "no_queries_available"},
	{datasource.ErrConnectionLimitReached, http.StatusTooManyRequests, "too_many_connections"},
	{apperrors.ErrSourceUnreachable, http.StatusUnprocessableEntity, "source_unreachable"},
	{apperrors.ErrUnsupportedDialect, http.StatusBadRequest, "unsupported_dialect"},
	{apperrors.ErrConflict, http.StatusConflict, "conflict"},
	{apperrors.ErrNoValidQueries, http.StatusBadRequest, "no_valid_queries"},
	{apperrors.ErrNoTimeBasedQueries, http.StatusBadRequest, "no_time_based_queries"},
	{apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// writeServiceError maps a service error onto a status and error code.
// Unknown errors are logged and reported as a generic failure.
func writeServiceError(w http.ResponseWriter, err error, fallback string, logger *zap.Logger) {
	var upstream *apperrors.UpstreamError
	if errors.As(err, &upstream) {
		logger.Warn("Upstream service failed",
			zap.String("service", upstream.Service),
			zap.Int("status", upstream.StatusCode),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream_failure", upstream.Error(), logger)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error(), logger)
			return
		}
	}

	logger.Error(fallback, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", fallback, logger)
}

// decodeJSON decodes a bounded request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", logger)
		return false
	}
	return true
}

// requireActor returns the authenticated actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.Actor, bool) {
	actor, err := auth.RequireActor(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", logger)
		return models.Actor{}, false
	}
	return actor, true
}
