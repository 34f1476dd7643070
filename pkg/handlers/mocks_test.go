package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/models"
	"github.com/ekaya-inc/risk-register/pkg/services"
)

// mockRiskService is a configurable mock for handler tests. Calls are
// recorded so tests can assert on what reached the service.
type mockRiskService struct {
	risk    *models.Risk
	risks   []*models.Risk
	summary *models.RiskSummary
	err     error

	lastFilter  *models.RiskFilter
	lastPayload *models.RiskPatch
	lastID      uuid.UUID
}

var _ services.RiskService = (*mockRiskService)(nil)

func (m *mockRiskService) List(_ context.Context, filter *models.RiskFilter) ([]*models.Risk, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	if m.risks == nil {
		return []*models.Risk{}, nil
	}
	return m.risks, nil
}

func (m *mockRiskService) Get(_ context.Context, id uuid.UUID) (*models.Risk, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.risk, nil
}

func (m *mockRiskService) Create(_ context.Context, payload *models.RiskPatch) (*models.Risk, error) {
	m.lastPayload = payload
	if m.err != nil {
		return nil, m.err
	}
	if m.risk != nil {
		return m.risk, nil
	}
	return &models.Risk{ID: uuid.New()}, nil
}

func (m *mockRiskService) Update(_ context.Context, id uuid.UUID, patch *models.RiskPatch) (*models.Risk, error) {
	m.lastID = id
	m.lastPayload = patch
	if m.err != nil {
		return nil, m.err
	}
	return m.risk, nil
}

func (m *mockRiskService) Delete(_ context.Context, id uuid.UUID) error {
	m.lastID = id
	return m.err
}

func (m *mockRiskService) Summary(_ context.Context) (*models.RiskSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.summary != nil {
		return m.summary, nil
	}
	return models.NewRiskSummary(), nil
}

// mockRiskExporter returns fixed bytes.
type mockRiskExporter struct {
	data       []byte
	err        error
	lastFilter *models.RiskFilter
}

func (m *mockRiskExporter) Export(_ context.Context, filter *models.RiskFilter) ([]byte, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

// newRiskTestMux wires a RiskHandler over the mocks the same way main does.
func newRiskTestMux(svc *mockRiskService, exporter *mockRiskExporter, showDetails bool) *http.ServeMux {
	logger := zap.NewNop()
	if exporter == nil {
		exporter = &mockRiskExporter{}
	}
	mux := http.NewServeMux()
	NewRiskHandler(svc, exporter, NewErrorReporter(showDetails, logger), logger).RegisterRoutes(mux)
	mux.HandleFunc("/", NotFound)
	return mux
}
