package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/models"
)

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

const validCreateBody = `{
	"title": "  Phishing campaign  ",
	"description": "Staff receive targeted phishing",
	"category": "Cybersecurity",
	"probability": "3",
	"impact": 4,
	"consequences": "Credential theft",
	"actionPlan": "Awareness training",
	"owner": "CISO",
	"dueAt": "2026-05-01",
	"score": 1,
	"level": "Low"
}`

// ============================================================================
// List
// ============================================================================

func TestRiskHandler_List(t *testing.T) {
	svc := &mockRiskService{risks: []*models.Risk{{ID: uuid.New(), Title: "A"}, {ID: uuid.New(), Title: "B"}}}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodGet, "/api/risks?status=Mitigated&category=Legal&sort=score", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["count"])
	assert.Len(t, body["data"], 2)

	require.NotNil(t, svc.lastFilter)
	assert.Equal(t, "Mitigated", svc.lastFilter.Status)
	assert.Equal(t, "Legal", svc.lastFilter.Category)
	assert.Equal(t, "", svc.lastFilter.Level)
	assert.Equal(t, models.RiskSort{Field: "score"}, svc.lastFilter.Sort)
}

func TestRiskHandler_List_EmptyHasZeroCount(t *testing.T) {
	mux := newRiskTestMux(&mockRiskService{}, nil, false)

	rec := serve(mux, http.MethodGet, "/api/risks", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[],"count":0}`, rec.Body.String())
}

func TestRiskHandler_List_DefaultSort(t *testing.T) {
	svc := &mockRiskService{}
	mux := newRiskTestMux(svc, nil, false)

	serve(mux, http.MethodGet, "/api/risks", "")

	assert.Equal(t, models.RiskSort{Field: models.SortFieldCreatedAt, Descending: true}, svc.lastFilter.Sort)
}

func TestRiskHandler_List_UnknownSort(t *testing.T) {
	svc := &mockRiskService{}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodGet, "/api/risks?sort=-password", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, MessageValidationFailed, body["message"])
	assert.Nil(t, svc.lastFilter)
}

func TestRiskHandler_List_StorageErrorHidesDetailsInProduction(t *testing.T) {
	svc := &mockRiskService{err: errors.New("dial tcp: postgres://risk:hunter2@db:5432 refused")}

	rec := serve(newRiskTestMux(svc, nil, false), http.MethodGet, "/api/risks", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, MessageInternalError, body["message"])
	assert.NotContains(t, body, "error")

	rec = serve(newRiskTestMux(svc, nil, true), http.MethodGet, "/api/risks", "")
	body = decodeEnvelope(t, rec)
	require.Contains(t, body, "error")
	assert.NotContains(t, body["error"], "hunter2")
	assert.Contains(t, body["error"], "refused")
}

// ============================================================================
// Get
// ============================================================================

func TestRiskHandler_Get(t *testing.T) {
	id := uuid.New()
	svc := &mockRiskService{risk: &models.Risk{ID: id, Title: "Flood", Score: 12, Level: models.RiskLevelHigh}}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodGet, "/api/risks/"+id.String(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, svc.lastID)
	body := decodeEnvelope(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Flood", data["title"])
	assert.Equal(t, "High", data["level"])
	assert.NotContains(t, data, "dueAt")
}

func TestRiskHandler_Get_NotFound(t *testing.T) {
	mux := newRiskTestMux(&mockRiskService{err: apperrors.ErrNotFound}, nil, false)

	rec := serve(mux, http.MethodGet, "/api/risks/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Risk not found"}`, rec.Body.String())
}

func TestRiskHandler_Get_MalformedIDIsNotFound(t *testing.T) {
	svc := &mockRiskService{}
	mux := newRiskTestMux(svc, nil, false)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := serve(mux, method, "/api/risks/not-an-id", "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			body := decodeEnvelope(t, rec)
			assert.Equal(t, MessageRiskNotFound, body["message"])
		})
	}
	assert.Equal(t, uuid.Nil, svc.lastID)
}

// ============================================================================
// Create
// ============================================================================

func TestRiskHandler_Create(t *testing.T) {
	created := &models.Risk{ID: uuid.New(), Title: "Phishing campaign", Score: 12, Level: models.RiskLevelHigh}
	svc := &mockRiskService{risk: created}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPost, "/api/risks", validCreateBody)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, MessageRiskCreated, body["message"])

	p := svc.lastPayload
	require.NotNil(t, p)
	assert.Equal(t, "Phishing campaign", *p.Title)
	assert.Equal(t, models.RiskCategoryCybersecurity, *p.Category)
	assert.Equal(t, 3, *p.Probability)
	assert.Equal(t, 4, *p.Impact)
	require.NotNil(t, p.DueAt)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), *p.DueAt)
	assert.Nil(t, p.Score)
	assert.Nil(t, p.Level)
	assert.Nil(t, p.IdentifiedAt)
}

func TestRiskHandler_Create_ValidationFromService(t *testing.T) {
	svc := &mockRiskService{err: apperrors.NewValidationError("Title is required", "Owner is required")}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPost, "/api/risks", `{"probability": 2}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Validation error","errors":["Title is required","Owner is required"]}`, rec.Body.String())
}

func TestRiskHandler_Create_BadInputs(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantFirst string
	}{
		{"fractional rating", `{"probability": 2.5}`, "Probability must be a whole number"},
		{"text rating", `{"impact": "high"}`, "Impact must be a number"},
		{"null rating", `{"impact": null}`, "Impact is required"},
		{"bad date", `{"identifiedAt": "yesterday"}`, ""},
		{"unknown field", `{"severity": 3}`, ""},
		{"wrong type", `{"title": 7}`, ""},
		{"not json", `{title:`, ""},
		{"trailing data", `{} {}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRiskService{}
			mux := newRiskTestMux(svc, nil, false)

			rec := serve(mux, http.MethodPost, "/api/risks", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ApiResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotEmpty(t, resp.Errors)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, resp.Errors[0])
			}
			assert.Nil(t, svc.lastPayload)
		})
	}
}

func TestRiskHandler_Create_ReportsConversionAndFieldErrorsTogether(t *testing.T) {
	svc := &mockRiskService{}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPost, "/api/risks",
		`{"title":"x","probability":2.5,"impact":"abc","category":"Weather","status":"Done"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, MessageValidationFailed, resp.Message)
	assert.Equal(t, []string{
		"Probability must be a whole number",
		"Impact must be a number",
		"Description is required",
		`Invalid category "Weather"`,
		"Consequences are required",
		"Action plan is required",
		"Owner is required",
		`Invalid status "Done"`,
	}, resp.Errors)
	assert.Nil(t, svc.lastPayload)
}

func TestRiskHandler_Update_ReportsConversionAndFieldErrorsTogether(t *testing.T) {
	svc := &mockRiskService{}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPut, "/api/risks/"+uuid.NewString(),
		`{"probability":"often","impact":9,"status":"Done","dueAt":"someday"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Errors, 4)
	assert.Equal(t, "Probability must be a number", resp.Errors[0])
	assert.True(t, strings.HasPrefix(resp.Errors[1], "Due date is invalid: "), resp.Errors[1])
	assert.Equal(t, "Impact must be at most 5", resp.Errors[2])
	assert.Equal(t, `Invalid status "Done"`, resp.Errors[3])
	assert.Nil(t, svc.lastPayload)
}

func TestRiskHandler_Create_Duplicate(t *testing.T) {
	svc := &mockRiskService{err: fmt.Errorf("create risk: %w", apperrors.ErrConflict)}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPost, "/api/risks", validCreateBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Duplicate value"}`, rec.Body.String())
}

// ============================================================================
// Update
// ============================================================================

func TestRiskHandler_Update(t *testing.T) {
	id := uuid.New()
	svc := &mockRiskService{risk: &models.Risk{ID: id, Status: models.RiskStatusTreating}}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPut, "/api/risks/"+id.String(), `{"status":"Treating","dueAt":null,"id":"ignored","createdAt":"2020-01-01T00:00:00Z"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, MessageRiskUpdated, body["message"])

	assert.Equal(t, id, svc.lastID)
	p := svc.lastPayload
	require.NotNil(t, p)
	assert.Equal(t, models.RiskStatusTreating, *p.Status)
	assert.True(t, p.ClearDueAt)
	assert.Nil(t, p.Title)
	assert.Nil(t, p.Probability)
}

func TestRiskHandler_Update_EmptyBody(t *testing.T) {
	id := uuid.New()
	svc := &mockRiskService{risk: &models.Risk{ID: id}}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodPut, "/api/risks/"+id.String(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastPayload)
	assert.Equal(t, &models.RiskPatch{}, svc.lastPayload)
}

func TestRiskHandler_Update_NotFound(t *testing.T) {
	mux := newRiskTestMux(&mockRiskService{err: apperrors.ErrNotFound}, nil, false)

	rec := serve(mux, http.MethodPut, "/api/risks/"+uuid.NewString(), `{"notes":"x"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Delete
// ============================================================================

func TestRiskHandler_Delete(t *testing.T) {
	id := uuid.New()
	svc := &mockRiskService{}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodDelete, "/api/risks/"+id.String(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{},"message":"Risk deleted"}`, rec.Body.String())
	assert.Equal(t, id, svc.lastID)
}

func TestRiskHandler_Delete_NotFound(t *testing.T) {
	mux := newRiskTestMux(&mockRiskService{err: apperrors.ErrNotFound}, nil, false)

	rec := serve(mux, http.MethodDelete, "/api/risks/"+uuid.NewString(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Summary / Export / Routing
// ============================================================================

func TestRiskHandler_Summary(t *testing.T) {
	summary := models.NewRiskSummary()
	summary.Total = 3
	summary.ActiveHighRisks = 1
	summary.ByLevel["High"] = 1
	svc := &mockRiskService{summary: summary}
	mux := newRiskTestMux(svc, nil, false)

	rec := serve(mux, http.MethodGet, "/api/risks/stats/summary", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(1), data["activeHighRisks"])
	assert.Equal(t, map[string]any{"High": float64(1)}, data["byLevel"])
	assert.Equal(t, []any{}, data["dueSoon"])
	// "stats" must not be parsed as an id.
	assert.Equal(t, uuid.Nil, svc.lastID)
}

func TestRiskHandler_Export(t *testing.T) {
	exporter := &mockRiskExporter{data: []byte("PK\x03\x04xlsx")}
	mux := newRiskTestMux(&mockRiskService{}, exporter, false)

	rec := serve(mux, http.MethodGet, "/api/risks/export?level=Critical", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="risk-register.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK\x03\x04xlsx", rec.Body.String())
	require.NotNil(t, exporter.lastFilter)
	assert.Equal(t, "Critical", exporter.lastFilter.Level)
}

func TestRiskHandler_Export_Error(t *testing.T) {
	exporter := &mockRiskExporter{err: errors.New("render failed")}
	mux := newRiskTestMux(&mockRiskService{}, exporter, false)

	rec := serve(mux, http.MethodGet, "/api/risks/export", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestNotFound_UnmatchedRoute(t *testing.T) {
	mux := newRiskTestMux(&mockRiskService{}, nil, false)

	for _, target := range []string{"/api/unknown", "/api/risks/a/b/c"} {
		rec := serve(mux, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.JSONEq(t, `{"success":false,"message":"Route not found"}`, rec.Body.String())
	}
}
