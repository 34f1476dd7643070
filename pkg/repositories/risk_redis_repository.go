package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/models"
	"github.com/ekaya-inc/risk-register/pkg/retry"
)

// redisRiskRepository stores each risk as a JSON document under
// "<prefix>:risk:<id>" and tracks ids in the set "<prefix>:risks".
type redisRiskRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRiskRepository creates a RiskRepository backed by Redis documents.
func NewRedisRiskRepository(client *redis.Client, keyPrefix string) RiskRepository {
	if keyPrefix == "" {
		keyPrefix = "risk-register"
	}
	return &redisRiskRepository{
		client: client,
		prefix: keyPrefix,
		now:    time.Now,
	}
}

var _ RiskRepository = (*redisRiskRepository)(nil)

func (r *redisRiskRepository) riskKey(id uuid.UUID) string {
	return r.prefix + ":risk:" + id.String()
}

func (r *redisRiskRepository) indexKey() string {
	return r.prefix + ":risks"
}

// ============================================================================
// CRUD Operations
// ============================================================================

func (r *redisRiskRepository) List(ctx context.Context, filter *models.RiskFilter) ([]*models.Risk, error) {
	if filter == nil {
		filter = &models.RiskFilter{Sort: models.RiskSort{Field: models.SortFieldCreatedAt, Descending: true}}
	}
	if !models.SortableRiskFields[filter.Sort.Field] {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported sort field %q", filter.Sort.Field))
	}

	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	risks := make([]*models.Risk, 0, len(all))
	for _, risk := range all {
		if filter.Matches(risk) {
			risks = append(risks, risk)
		}
	}
	sort.SliceStable(risks, func(i, j int) bool {
		return filter.Less(risks[i], risks[j])
	})
	return risks, nil
}

func (r *redisRiskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Risk, error) {
	data, err := r.client.Get(ctx, r.riskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get risk: %w", err)
	}
	return decodeRisk(data)
}

func (r *redisRiskRepository) Create(ctx context.Context, risk *models.Risk) error {
	if risk.ID == uuid.Nil {
		risk.ID = uuid.New()
	}

	data, err := json.Marshal(risk)
	if err != nil {
		return fmt.Errorf("failed to encode risk: %w", err)
	}

	var created *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, r.riskKey(risk.ID), data, 0)
		pipe.SAdd(ctx, r.indexKey(), risk.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create risk: %w", err)
	}
	if !created.Val() {
		return fmt.Errorf("create risk %s: %w", risk.ID, apperrors.ErrConflict)
	}
	return nil
}

func (r *redisRiskRepository) Update(ctx context.Context, id uuid.UUID, patch *models.RiskPatch) (*models.Risk, error) {
	key := r.riskKey(id)

	updated, err := retry.DoWithResult(ctx, updateRetryConfig(), func() (*models.Risk, error) {
		risk, err := r.updateOnce(ctx, key, patch)
		if errors.Is(err, redis.TxFailedErr) {
			return nil, writeConflict{err}
		}
		return risk, retry.Permanent(err)
	})
	if err != nil {
		var conflict writeConflict
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.ErrNotFound
		case errors.As(err, &conflict):
			return nil, fmt.Errorf("failed to update risk %s: too many concurrent modifications", id)
		default:
			return nil, fmt.Errorf("failed to update risk: %w", err)
		}
	}
	return updated, nil
}

// updateOnce applies patch inside a single WATCH/MULTI transaction. It
// returns redis.TxFailedErr when another writer changed the key first.
func (r *redisRiskRepository) updateOnce(ctx context.Context, key string, patch *models.RiskPatch) (*models.Risk, error) {
	var updated *models.Risk

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("failed to load risk: %w", err)
		}

		risk, err := decodeRisk(data)
		if err != nil {
			return err
		}
		patch.ApplyTo(risk, r.now().UTC())

		encoded, err := json.Marshal(risk)
		if err != nil {
			return fmt.Errorf("failed to encode risk: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = risk
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// writeConflict marks a lost WATCH race, the only update failure worth
// retrying.
type writeConflict struct {
	error
}

func (writeConflict) IsRetryable() bool { return true }

// updateRetryConfig paces WATCH retries with jittered backoff.
func updateRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   100,
		InitialDelay: time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   1.5,
		JitterFactor: 1.0,
	}
}

func (r *redisRiskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.riskKey(id))
		pipe.SRem(ctx, r.indexKey(), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete risk: %w", err)
	}
	if deleted.Val() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Aggregates
// ============================================================================

func (r *redisRiskRepository) Summary(ctx context.Context, now time.Time) (*models.RiskSummary, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	return models.SummarizeRisks(all, now), nil
}

// ============================================================================
// Helpers
// ============================================================================

// loadAll reads every indexed risk. Ids whose document has vanished (a delete
// racing with the read) are skipped.
func (r *redisRiskRepository) loadAll(ctx context.Context) ([]*models.Risk, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list risk ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Risk{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.prefix + ":risk:" + id
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load risks: %w", err)
	}

	risks := make([]*models.Risk, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		risk, err := decodeRisk([]byte(s))
		if err != nil {
			return nil, err
		}
		risks = append(risks, risk)
	}
	return risks, nil
}

func decodeRisk(data []byte) (*models.Risk, error) {
	var risk models.Risk
	if err := json.Unmarshal(data, &risk); err != nil {
		return nil, fmt.Errorf("failed to decode risk: %w", err)
	}
	return &risk, nil
}
