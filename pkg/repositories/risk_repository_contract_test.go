package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/models"
)

// riskRepoFactory returns an empty repository for one subtest.
type riskRepoFactory func(t *testing.T) RiskRepository

// newTestRisk builds a valid risk. Timestamps are truncated to microseconds
// so values round-trip through PostgreSQL unchanged.
func newTestRisk(title string, probability, impact int, status models.RiskStatus, category models.RiskCategory, createdAt time.Time) *models.Risk {
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	r := &models.Risk{
		Title:        title,
		Description:  "description of " + title,
		Category:     category,
		Probability:  probability,
		Impact:       impact,
		Consequences: "consequences",
		ActionPlan:   "plan",
		IdentifiedAt: createdAt,
		Owner:        "owner",
		Status:       status,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	r.Recompute()
	return r
}

// runRiskRepositoryContract exercises behaviour every RiskRepository must share.
func runRiskRepositoryContract(t *testing.T, newRepo riskRepoFactory) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		risk := newTestRisk("Ransomware", 3, 4, models.RiskStatusIdentified, models.RiskCategoryCybersecurity, base)

		require.NoError(t, repo.Create(ctx, risk))
		require.NotEqual(t, uuid.Nil, risk.ID)

		got, err := repo.GetByID(ctx, risk.ID)
		require.NoError(t, err)
		assert.Equal(t, risk.Title, got.Title)
		assert.Equal(t, 12, got.Score)
		assert.Equal(t, models.RiskLevelHigh, got.Level)
		assert.Equal(t, models.RiskCategoryCybersecurity, got.Category)
		assert.True(t, risk.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.DueAt)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("list filters and sorts", func(t *testing.T) {
		repo := newRepo(t)
		a := newTestRisk("A", 1, 1, models.RiskStatusMitigated, models.RiskCategoryLegal, base)
		b := newTestRisk("B", 5, 5, models.RiskStatusMitigated, models.RiskCategoryFinancial, base.Add(time.Minute))
		c := newTestRisk("C", 3, 4, models.RiskStatusTreating, models.RiskCategoryLegal, base.Add(2*time.Minute))
		for _, r := range []*models.Risk{a, b, c} {
			require.NoError(t, repo.Create(ctx, r))
		}

		all, err := repo.List(ctx, &models.RiskFilter{Sort: models.RiskSort{Field: models.SortFieldCreatedAt, Descending: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{"C", "B", "A"}, titles(all))

		mitigated, err := repo.List(ctx, &models.RiskFilter{Status: "Mitigated", Sort: models.RiskSort{Field: models.SortFieldScore}})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, titles(mitigated))

		both, err := repo.List(ctx, &models.RiskFilter{Status: "Mitigated", Category: "Legal", Sort: models.RiskSort{Field: models.SortFieldCreatedAt}})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, titles(both))

		none, err := repo.List(ctx, &models.RiskFilter{Level: "Critical", Status: "Treating", Sort: models.RiskSort{Field: models.SortFieldCreatedAt}})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("list rejects unknown sort", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.List(ctx, &models.RiskFilter{Sort: models.RiskSort{Field: "password"}})
		_, ok := apperrors.IsValidation(err)
		assert.True(t, ok)
	})

	t.Run("update applies patch", func(t *testing.T) {
		repo := newRepo(t)
		risk := newTestRisk("Vendor lock-in", 3, 4, models.RiskStatusIdentified, models.RiskCategoryTechnological, base)
		require.NoError(t, repo.Create(ctx, risk))

		status := models.RiskStatusTreating
		p, i := 5, 5
		due := base.Add(72 * time.Hour).UTC().Truncate(time.Microsecond)
		patch := &models.RiskPatch{Status: &status, Probability: &p, Impact: &i, DueAt: &due}
		require.True(t, patch.ApplyScore())

		updated, err := repo.Update(ctx, risk.ID, patch)
		require.NoError(t, err)
		assert.Equal(t, models.RiskStatusTreating, updated.Status)
		assert.Equal(t, 25, updated.Score)
		assert.Equal(t, models.RiskLevelCritical, updated.Level)
		require.NotNil(t, updated.DueAt)
		assert.True(t, due.Equal(*updated.DueAt))
		assert.Equal(t, risk.Title, updated.Title)
		assert.False(t, updated.UpdatedAt.Before(risk.UpdatedAt))

		got, err := repo.GetByID(ctx, risk.ID)
		require.NoError(t, err)
		assert.Equal(t, 25, got.Score)

		cleared, err := repo.Update(ctx, risk.ID, &models.RiskPatch{ClearDueAt: true})
		require.NoError(t, err)
		assert.Nil(t, cleared.DueAt)
	})

	t.Run("update single rating keeps score", func(t *testing.T) {
		repo := newRepo(t)
		risk := newTestRisk("Key person", 3, 4, models.RiskStatusIdentified, models.RiskCategoryOperational, base)
		require.NoError(t, repo.Create(ctx, risk))

		p := 1
		patch := &models.RiskPatch{Probability: &p}
		require.False(t, patch.ApplyScore())

		updated, err := repo.Update(ctx, risk.ID, patch)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Probability)
		assert.Equal(t, 12, updated.Score)
		assert.Equal(t, models.RiskLevelHigh, updated.Level)
	})

	t.Run("update missing", func(t *testing.T) {
		repo := newRepo(t)
		notes := "x"
		_, err := repo.Update(ctx, uuid.New(), &models.RiskPatch{Notes: &notes})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("delete twice", func(t *testing.T) {
		repo := newRepo(t)
		risk := newTestRisk("Fire", 1, 5, models.RiskStatusIdentified, models.RiskCategoryPhysicalSecurity, base)
		require.NoError(t, repo.Create(ctx, risk))

		require.NoError(t, repo.Delete(ctx, risk.ID))
		assert.ErrorIs(t, repo.Delete(ctx, risk.ID), apperrors.ErrNotFound)

		_, err := repo.GetByID(ctx, risk.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		all, err := repo.List(ctx, &models.RiskFilter{Sort: models.RiskSort{Field: models.SortFieldCreatedAt}})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("summary", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now().UTC().Truncate(time.Microsecond)
		soon := now.Add(48 * time.Hour)
		later := now.Add(10 * 24 * time.Hour)

		active := newTestRisk("Active", 4, 5, models.RiskStatusTreating, models.RiskCategoryCybersecurity, base)
		active.DueAt = &soon
		settled := newTestRisk("Settled", 4, 5, models.RiskStatusMitigated, models.RiskCategoryCybersecurity, base)
		settled.DueAt = &soon
		far := newTestRisk("Far", 1, 2, models.RiskStatusIdentified, models.RiskCategoryLegal, base)
		far.DueAt = &later
		for _, r := range []*models.Risk{active, settled, far} {
			require.NoError(t, repo.Create(ctx, r))
		}

		s, err := repo.Summary(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 3, s.Total)
		assert.Equal(t, 1, s.ActiveHighRisks)
		assert.Equal(t, map[string]int{"Critical": 2, "Low": 1}, s.ByLevel)
		assert.Equal(t, map[string]int{"Treating": 1, "Mitigated": 1, "Identified": 1}, s.ByStatus)
		assert.Equal(t, map[string]int{"Cybersecurity": 2, "Legal": 1}, s.ByCategory)
		assert.Equal(t, []string{"Active"}, titles(s.DueSoon))
	})
}

func titles(risks []*models.Risk) []string {
	out := make([]string, 0, len(risks))
	for _, r := range risks {
		out = append(out, r.Title)
	}
	return out
}
