package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/models"
	"github.com/ekaya-inc/risk-register/pkg/repositories"
)

// RiskService provides operations on the risk register.
type RiskService interface {
	List(ctx context.Context, filter *models.RiskFilter) ([]*models.Risk, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Risk, error)
	// Create builds a risk from the payload, validates it and stores it.
	// Score and level are always computed here.
	Create(ctx context.Context, payload *models.RiskPatch) (*models.Risk, error)
	// Update applies a partial change. Score and level are recomputed only
	// when the patch carries both probability and impact.
	Update(ctx context.Context, id uuid.UUID, patch *models.RiskPatch) (*models.Risk, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Summary(ctx context.Context) (*models.RiskSummary, error)
}

type riskService struct {
	repo   repositories.RiskRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewRiskService creates a new risk service.
func NewRiskService(repo repositories.RiskRepository, logger *zap.Logger) RiskService {
	return &riskService{
		repo:   repo,
		logger: logger.Named("risk-service"),
		now:    time.Now,
	}
}

var _ RiskService = (*riskService)(nil)

func (s *riskService) List(ctx context.Context, filter *models.RiskFilter) ([]*models.Risk, error) {
	risks, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logFailure("Failed to list risks", err)
		return nil, err
	}
	return risks, nil
}

func (s *riskService) Get(ctx context.Context, id uuid.UUID) (*models.Risk, error) {
	risk, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logFailure("Failed to get risk", err, zap.String("risk_id", id.String()))
		return nil, err
	}
	return risk, nil
}

func (s *riskService) Create(ctx context.Context, payload *models.RiskPatch) (*models.Risk, error) {
	now := s.now().UTC()
	risk := models.NewRisk(payload, now)
	if err := risk.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, risk); err != nil {
		s.logFailure("Failed to create risk", err, zap.String("title", risk.Title))
		return nil, err
	}

	s.logger.Info("Risk created",
		zap.String("risk_id", risk.ID.String()),
		zap.Int("score", risk.Score),
		zap.String("level", string(risk.Level)))
	return risk, nil
}

func (s *riskService) Update(ctx context.Context, id uuid.UUID, patch *models.RiskPatch) (*models.Risk, error) {
	// Derived values only ever come from ApplyScore below.
	patch.Score, patch.Level = nil, nil
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	patch.ApplyScore()

	risk, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		s.logFailure("Failed to update risk", err, zap.String("risk_id", id.String()))
		return nil, err
	}

	s.logger.Debug("Risk updated",
		zap.String("risk_id", id.String()),
		zap.Bool("rescored", patch.HasRatings()))
	return risk, nil
}

func (s *riskService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logFailure("Failed to delete risk", err, zap.String("risk_id", id.String()))
		return err
	}
	s.logger.Info("Risk deleted", zap.String("risk_id", id.String()))
	return nil
}

func (s *riskService) Summary(ctx context.Context) (*models.RiskSummary, error) {
	summary, err := s.repo.Summary(ctx, s.now().UTC())
	if err != nil {
		s.logFailure("Failed to summarize risks", err)
		return nil, err
	}
	return summary, nil
}

// logFailure logs unexpected storage errors. Not-found and validation
// failures are client errors and are left to the handler.
func (s *riskService) logFailure(msg string, err error, fields ...zap.Field) {
	if errors.Is(err, apperrors.ErrNotFound) {
		return
	}
	if _, ok := apperrors.IsValidation(err); ok {
		return
	}
	s.logger.Error(msg, append(fields, zap.Error(err))...)
}
