package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/jsonutil"
	"github.com/ekaya-inc/risk-register/pkg/models"
	"github.com/ekaya-inc/risk-register/pkg/services"
)

// Success messages for write operations.
const (
	MessageRiskCreated = "Risk created"
	MessageRiskUpdated = "Risk updated"
	MessageRiskDeleted = "Risk deleted"
)

const (
	maxRequestBodyBytes = 1 << 20
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportFilename      = "risk-register.xlsx"
)

// riskRequest is the body accepted by create and update. Every field is
// optional at this level; the service decides what is required.
// Ratings and dates are raw so numeric strings and calendar dates can be
// accepted, and so null can be told apart from absent.
type riskRequest struct {
	Title        *string         `json:"title"`
	Description  *string         `json:"description"`
	Category     *string         `json:"category"`
	Probability  json.RawMessage `json:"probability"`
	Impact       json.RawMessage `json:"impact"`
	Consequences *string         `json:"consequences"`
	ActionPlan   *string         `json:"actionPlan"`
	IdentifiedAt json.RawMessage `json:"identifiedAt"`
	DueAt        json.RawMessage `json:"dueAt"`
	Owner        *string         `json:"owner"`
	Status       *string         `json:"status"`
	Notes        *string         `json:"notes"`

	// Read-only fields clients echo back from earlier responses. Accepted
	// and discarded.
	ID        json.RawMessage `json:"id"`
	Score     json.RawMessage `json:"score"`
	Level     json.RawMessage `json:"level"`
	CreatedAt json.RawMessage `json:"createdAt"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
}

// Labels of fields whose raw value is converted before validation. Domain
// messages for these fields start with the same label.
const (
	fieldProbability  = "Probability"
	fieldImpact       = "Impact"
	fieldIdentifiedAt = "Identification date"
	fieldDueAt        = "Due date"
)

// inputErrors collects conversion failures from a request body, keyed by the
// field that failed.
type inputErrors struct {
	messages []string
	fields   map[string]bool
}

func (e *inputErrors) add(field, message string) {
	if e.fields == nil {
		e.fields = map[string]bool{}
	}
	e.fields[field] = true
	e.messages = append(e.messages, message)
}

func (e *inputErrors) empty() bool {
	return len(e.messages) == 0
}

// merge returns one ValidationError holding the conversion messages followed
// by the domain messages from validationErr. Domain messages about a field
// that already failed to convert are dropped.
func (e *inputErrors) merge(validationErr error) error {
	messages := append([]string(nil), e.messages...)
	if ve, ok := apperrors.IsValidation(validationErr); ok {
		for _, m := range ve.Messages {
			if !e.covers(m) {
				messages = append(messages, m)
			}
		}
	}
	return apperrors.NewValidationError(messages...)
}

func (e *inputErrors) covers(message string) bool {
	for field := range e.fields {
		if strings.HasPrefix(message, field+" ") {
			return true
		}
	}
	return false
}

// toPatch converts the request into a RiskPatch, trimming text and parsing
// ratings and dates. Fields that fail to convert are left nil in the patch
// and reported in the returned inputErrors.
func (req *riskRequest) toPatch() (*models.RiskPatch, *inputErrors) {
	bad := &inputErrors{}
	p := &models.RiskPatch{
		Title:        trimmed(req.Title),
		Description:  trimmed(req.Description),
		Consequences: trimmed(req.Consequences),
		ActionPlan:   trimmed(req.ActionPlan),
		Owner:        trimmed(req.Owner),
		Notes:        trimmed(req.Notes),
	}
	if c := trimmed(req.Category); c != nil {
		category := models.RiskCategory(*c)
		p.Category = &category
	}
	if s := trimmed(req.Status); s != nil {
		status := models.RiskStatus(*s)
		p.Status = &status
	}

	p.Probability = parseRating(bad, fieldProbability, req.Probability)
	p.Impact = parseRating(bad, fieldImpact, req.Impact)

	if req.IdentifiedAt != nil {
		if isBlank(req.IdentifiedAt) {
			bad.add(fieldIdentifiedAt, fieldIdentifiedAt+" is required")
		} else if t, err := parseDate(req.IdentifiedAt); err != nil {
			bad.add(fieldIdentifiedAt, fieldIdentifiedAt+" is invalid: "+err.Error())
		} else {
			p.IdentifiedAt = &t
		}
	}

	if req.DueAt != nil {
		if isBlank(req.DueAt) {
			p.ClearDueAt = true
		} else if t, err := parseDate(req.DueAt); err != nil {
			bad.add(fieldDueAt, fieldDueAt+" is invalid: "+err.Error())
		} else {
			p.DueAt = &t
		}
	}

	return p, bad
}

// parseRating reads an optional 1-5 rating. A present but null value counts
// as missing.
func parseRating(bad *inputErrors, field string, raw json.RawMessage) *int {
	if raw == nil {
		return nil
	}
	if jsonutil.IsNull(raw) {
		bad.add(field, field+" is required")
		return nil
	}
	n, err := jsonutil.FlexibleIntValue(raw)
	if errors.Is(err, jsonutil.ErrNotInteger) {
		bad.add(field, field+" must be a whole number")
		return nil
	}
	if err != nil {
		bad.add(field, field+" must be a number")
		return nil
	}
	return &n
}

func parseDate(raw json.RawMessage) (time.Time, error) {
	t, err := jsonutil.FlexibleTimeValue(raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// isBlank reports null or an empty string.
func isBlank(raw json.RawMessage) bool {
	return jsonutil.IsNull(raw) || strings.TrimSpace(string(raw)) == `""`
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// decodeRiskRequest reads a JSON object body. Unknown fields and trailing
// data are rejected with an error. An empty body decodes as an empty object.
// Field conversion failures come back separately so the caller can report
// them together with the domain validation messages.
func decodeRiskRequest(w http.ResponseWriter, r *http.Request) (*models.RiskPatch, *inputErrors, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()

	var req riskRequest
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, apperrors.NewValidationError("Invalid request body: " + describeDecodeError(err))
	}
	if dec.More() {
		return nil, nil, apperrors.NewValidationError("Invalid request body: unexpected data after JSON object")
	}
	patch, bad := req.toPatch()
	return patch, bad, nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.As(err, &maxErr):
		return "body too large"
	default:
		return err.Error()
	}
}

// RiskHandler serves the /api/risks endpoints.
type RiskHandler struct {
	service  services.RiskService
	exporter services.RiskExporter
	reporter *ErrorReporter
	logger   *zap.Logger
}

// NewRiskHandler creates a new risk handler.
func NewRiskHandler(service services.RiskService, exporter services.RiskExporter, reporter *ErrorReporter, logger *zap.Logger) *RiskHandler {
	return &RiskHandler{
		service:  service,
		exporter: exporter,
		reporter: reporter,
		logger:   logger,
	}
}

// RegisterRoutes registers the risk endpoints. The literal summary and
// export paths take precedence over {id}.
func (h *RiskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/risks", h.List)
	mux.HandleFunc("POST /api/risks", h.Create)
	mux.HandleFunc("GET /api/risks/stats/summary", h.Summary)
	mux.HandleFunc("GET /api/risks/export", h.Export)
	mux.HandleFunc("GET /api/risks/{id}", h.Get)
	mux.HandleFunc("PUT /api/risks/{id}", h.Update)
	mux.HandleFunc("DELETE /api/risks/{id}", h.Delete)
}

// List handles GET /api/risks?status=&level=&category=&sort=
func (h *RiskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := models.BuildFilter(r.URL.Query())
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}

	risks, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}

	count := len(risks)
	h.respond(w, http.StatusOK, ApiResponse{Success: true, Data: risks, Count: &count})
}

// Get handles GET /api/risks/{id}
func (h *RiskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRiskID(w, r, h.logger)
	if !ok {
		return
	}

	risk, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	h.respond(w, http.StatusOK, ApiResponse{Success: true, Data: risk})
}

// Create handles POST /api/risks
func (h *RiskHandler) Create(w http.ResponseWriter, r *http.Request) {
	payload, bad, err := decodeRiskRequest(w, r)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	if !bad.empty() {
		err := bad.merge(models.NewRisk(payload, time.Now().UTC()).Validate())
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}

	risk, err := h.service.Create(r.Context(), payload)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	h.respond(w, http.StatusCreated, ApiResponse{Success: true, Data: risk, Message: MessageRiskCreated})
}

// Update handles PUT /api/risks/{id}
// Only the fields present in the body change.
func (h *RiskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRiskID(w, r, h.logger)
	if !ok {
		return
	}

	patch, bad, err := decodeRiskRequest(w, r)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	if !bad.empty() {
		h.reporter.Write(w, r, bad.merge(patch.Validate()), MessageRiskNotFound)
		return
	}

	risk, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	h.respond(w, http.StatusOK, ApiResponse{Success: true, Data: risk, Message: MessageRiskUpdated})
}

// Delete handles DELETE /api/risks/{id}
func (h *RiskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseRiskID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	h.respond(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]any{}, Message: MessageRiskDeleted})
}

// Summary handles GET /api/risks/stats/summary
func (h *RiskHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}
	h.respond(w, http.StatusOK, ApiResponse{Success: true, Data: summary})
}

// Export handles GET /api/risks/export with the same query parameters as List
// and returns an XLSX attachment.
func (h *RiskHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := models.BuildFilter(r.URL.Query())
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}

	data, err := h.exporter.Export(r.Context(), filter)
	if err != nil {
		h.reporter.Write(w, r, err, MessageRiskNotFound)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write export", zap.Error(err))
	}
}

func (h *RiskHandler) respond(w http.ResponseWriter, status int, resp ApiResponse) {
	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
