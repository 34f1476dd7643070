package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageRiskNotFound is returned for unknown and malformed risk ids alike.
const MessageRiskNotFound = "Risk not found"

// ParseRiskID extracts the risk ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false after
// writing a 404. A malformed id cannot name an existing risk, so it is
// reported the same way as a missing one.
// Expects path parameter: id
func ParseRiskID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", http.StatusNotFound, MessageRiskNotFound, logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam string, status int, message string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, status, message); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
