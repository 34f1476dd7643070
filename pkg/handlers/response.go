package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/logging"
)

// Messages returned in failure envelopes.
const (
	MessageValidationFailed = "Validation error"
	MessageDuplicateValue   = "Duplicate value"
	MessageInternalError    = "Internal server error"
	MessageRouteNotFound    = "Route not found"
)

// ApiResponse is the envelope every JSON endpoint returns.
type ApiResponse struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Count   *int     `json:"count,omitempty"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ErrorResponse writes a failure envelope and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, ApiResponse{Success: false, Message: message})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorReporter turns application errors into failure envelopes.
type ErrorReporter struct {
	// ShowDetails adds the sanitized internal error text to 500 responses.
	ShowDetails bool
	logger      *zap.Logger
}

// NewErrorReporter creates an ErrorReporter. Details should only be shown
// outside production.
func NewErrorReporter(showDetails bool, logger *zap.Logger) *ErrorReporter {
	return &ErrorReporter{ShowDetails: showDetails, logger: logger}
}

// Write maps err to a status code and envelope:
// validation -> 400 with errors, not found -> 404 with notFoundMessage,
// conflict -> 400, anything else -> 500.
func (e *ErrorReporter) Write(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	var (
		status int
		resp   = ApiResponse{Success: false}
	)

	if ve, ok := apperrors.IsValidation(err); ok {
		status = http.StatusBadRequest
		resp.Message = MessageValidationFailed
		resp.Errors = ve.Messages
	} else if errors.Is(err, apperrors.ErrNotFound) {
		status = http.StatusNotFound
		resp.Message = notFoundMessage
	} else if errors.Is(err, apperrors.ErrConflict) {
		status = http.StatusBadRequest
		resp.Message = MessageDuplicateValue
	} else {
		status = http.StatusInternalServerError
		resp.Message = MessageInternalError
		if e.ShowDetails {
			resp.Error = logging.SanitizeError(err)
		}
		e.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("error", logging.SanitizeError(err)))
	}

	if err := WriteJSON(w, status, resp); err != nil {
		e.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// NotFound answers requests that match no route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	_ = ErrorResponse(w, http.StatusNotFound, MessageRouteNotFound)
}
