package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseSourceID extracts and validates the external source ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseSourceID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_source_id", "Invalid source ID format", logger)
}

// ParseQueryID extracts and validates the query ID from the request path.
// Expects path parameter: qid
func ParseQueryID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "qid", "invalid_query_id", "Invalid query ID format", logger)
}

// ParseDashboardID extracts and validates the dashboard ID from the request path.
// Expects path parameter: did
func ParseDashboardID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "did", "invalid_dashboard_id", "Invalid dashboard ID format", logger)
}

// ParseSourceAndQueryIDs extracts and validates both source and query IDs.
// Expects path parameters: sid, qid
func ParseSourceAndQueryIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	sourceID, ok := ParseSourceID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	queryID, ok := ParseQueryID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return sourceID, queryID, true
}

// parseUUIDList parses ids from a request body, writing a 400 on the first bad one.
func parseUUIDList(w http.ResponseWriter, raw []string, logger *zap.Logger) ([]uuid.UUID, bool) {
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "missing_query_ids", "query_ids is required", logger)
		return nil, false
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query_id", "Invalid query ID format: "+s, logger)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

