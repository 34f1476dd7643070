package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/risk-register/pkg/apperrors"
	"github.com/ekaya-inc/risk-register/pkg/database"
	"github.com/ekaya-inc/risk-register/pkg/models"
)

// RiskRepository provides data access for risk register entries.
type RiskRepository interface {
	// List returns every risk matching filter, ordered by filter.Sort.
	List(ctx context.Context, filter *models.RiskFilter) ([]*models.Risk, error)
	// GetByID returns apperrors.ErrNotFound when no risk has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Risk, error)
	// Create stores a new risk; ID is assigned when unset.
	Create(ctx context.Context, risk *models.Risk) error
	// Update applies patch atomically and returns the stored result.
	Update(ctx context.Context, id uuid.UUID, patch *models.RiskPatch) (*models.Risk, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Summary aggregates the register as of now.
	Summary(ctx context.Context, now time.Time) (*models.RiskSummary, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRiskRepository struct {
	db *database.DB
}

// NewPostgresRiskRepository creates a RiskRepository backed by PostgreSQL.
func NewPostgresRiskRepository(db *database.DB) RiskRepository {
	return &postgresRiskRepository{db: db}
}

var _ RiskRepository = (*postgresRiskRepository)(nil)

const riskColumns = `id, title, description, category, probability, impact, score, level,
	consequences, action_plan, identified_at, due_at, owner, status, notes,
	created_at, updated_at`

// riskSortColumns whitelists the columns a list may be ordered by, keyed by
// the JSON field name clients send.
var riskSortColumns = map[string]string{
	models.SortFieldCreatedAt:    "created_at",
	models.SortFieldUpdatedAt:    "updated_at",
	models.SortFieldIdentifiedAt: "identified_at",
	models.SortFieldDueAt:        "due_at",
	models.SortFieldTitle:        "title",
	models.SortFieldScore:        "score",
	models.SortFieldProbability:  "probability",
	models.SortFieldImpact:       "impact",
	models.SortFieldLevel:        "level",
	models.SortFieldStatus:       "status",
	models.SortFieldCategory:     "category",
	models.SortFieldOwner:        "owner",
}

// settledStatusesSQL lists statuses excluded from "active" aggregates.
var settledStatusesSQL = fmt.Sprintf("('%s', '%s')", models.RiskStatusMitigated, models.RiskStatusClosed)

// ============================================================================
// CRUD Operations
// ============================================================================

func (r *postgresRiskRepository) List(ctx context.Context, filter *models.RiskFilter) ([]*models.Risk, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}
	return queryRisks(ctx, r.db, query, args...)
}

func (r *postgresRiskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Risk, error) {
	query := `SELECT ` + riskColumns + ` FROM risks WHERE id = $1`

	risk, err := scanRisk(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get risk: %w", err)
	}
	return risk, nil
}

func (r *postgresRiskRepository) Create(ctx context.Context, risk *models.Risk) error {
	if risk.ID == uuid.Nil {
		risk.ID = uuid.New()
	}

	query := `
		INSERT INTO risks (` + riskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING identified_at, due_at, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		risk.ID,
		risk.Title,
		risk.Description,
		string(risk.Category),
		risk.Probability,
		risk.Impact,
		risk.Score,
		string(risk.Level),
		risk.Consequences,
		risk.ActionPlan,
		risk.IdentifiedAt,
		risk.DueAt,
		risk.Owner,
		string(risk.Status),
		risk.Notes,
		risk.CreatedAt,
		risk.UpdatedAt,
	).Scan(&risk.IdentifiedAt, &risk.DueAt, &risk.CreatedAt, &risk.UpdatedAt)
	if err != nil {
		return mapWriteError("create risk", err)
	}
	return nil
}

func (r *postgresRiskRepository) Update(ctx context.Context, id uuid.UUID, patch *models.RiskPatch) (*models.Risk, error) {
	query, args := buildUpdateQuery(id, patch)

	risk, err := scanRisk(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, mapWriteError("update risk", err)
	}
	return risk, nil
}

func (r *postgresRiskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM risks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete risk: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Aggregates
// ============================================================================

func (r *postgresRiskRepository) Summary(ctx context.Context, now time.Time) (*models.RiskSummary, error) {
	// One snapshot for all aggregate queries so the counts agree with each other.
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin summary transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	summary := models.NewRiskSummary()

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM risks`).Scan(&summary.Total); err != nil {
		return nil, fmt.Errorf("failed to count risks: %w", err)
	}

	for column, target := range map[string]map[string]int{
		"level":    summary.ByLevel,
		"status":   summary.ByStatus,
		"category": summary.ByCategory,
	} {
		if err := countBy(ctx, tx, column, target); err != nil {
			return nil, err
		}
	}

	activeHigh := fmt.Sprintf(`
		SELECT COUNT(*) FROM risks
		WHERE level IN ('%s', '%s') AND status NOT IN %s`,
		models.RiskLevelHigh, models.RiskLevelCritical, settledStatusesSQL)
	if err := tx.QueryRow(ctx, activeHigh).Scan(&summary.ActiveHighRisks); err != nil {
		return nil, fmt.Errorf("failed to count active high risks: %w", err)
	}

	from, to := models.DueWindowBounds(now)
	dueSoon := `SELECT ` + riskColumns + ` FROM risks
		WHERE due_at >= $1 AND due_at <= $2 AND status NOT IN ` + settledStatusesSQL + `
		ORDER BY due_at ASC, id ASC`
	risks, err := queryRisks(ctx, tx, dueSoon, from, to)
	if err != nil {
		return nil, err
	}
	summary.DueSoon = risks

	return summary, nil
}

// countBy fills target with row counts grouped by column. column must come
// from a fixed set, never from client input.
func countBy(ctx context.Context, q querier, column string, target map[string]int) error {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM risks GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("failed to count risks by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		target[key] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return nil
}

// ============================================================================
// Query Building
// ============================================================================

// buildListQuery renders a RiskFilter as a parameterised SELECT.
func buildListQuery(filter *models.RiskFilter) (string, []any, error) {
	if filter == nil {
		filter = &models.RiskFilter{Sort: models.RiskSort{Field: models.SortFieldCreatedAt, Descending: true}}
	}

	var clauses []string
	var args []any
	addClause := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addClause("status", filter.Status)
	addClause("level", filter.Level)
	addClause("category", filter.Category)

	column, ok := riskSortColumns[filter.Sort.Field]
	if !ok {
		return "", nil, apperrors.NewValidationError(fmt.Sprintf("unsupported sort field %q", filter.Sort.Field))
	}
	direction := "ASC"
	if filter.Sort.Descending {
		direction = "DESC"
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + riskColumns + ` FROM risks`)
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s %s", column, direction)
	if column != "created_at" {
		b.WriteString(", created_at DESC")
	}
	b.WriteString(", id ASC")

	return b.String(), args, nil
}

// buildUpdateQuery renders a RiskPatch as a single UPDATE ... RETURNING so the
// change and the read-back are one atomic statement. $1 is always the id.
func buildUpdateQuery(id uuid.UUID, patch *models.RiskPatch) (string, []any) {
	args := []any{id}
	var sets []string
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", string(*patch.Category))
	}
	if patch.Probability != nil {
		set("probability", *patch.Probability)
	}
	if patch.Impact != nil {
		set("impact", *patch.Impact)
	}
	if patch.Score != nil {
		set("score", *patch.Score)
	}
	if patch.Level != nil {
		set("level", string(*patch.Level))
	}
	if patch.Consequences != nil {
		set("consequences", *patch.Consequences)
	}
	if patch.ActionPlan != nil {
		set("action_plan", *patch.ActionPlan)
	}
	if patch.IdentifiedAt != nil {
		set("identified_at", *patch.IdentifiedAt)
	}
	if patch.ClearDueAt {
		sets = append(sets, "due_at = NULL")
	} else if patch.DueAt != nil {
		set("due_at", *patch.DueAt)
	}
	if patch.Owner != nil {
		set("owner", *patch.Owner)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	sets = append(sets, "updated_at = now()")

	query := `UPDATE risks SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + riskColumns
	return query, args
}

// ============================================================================
// Helpers
// ============================================================================

func queryRisks(ctx context.Context, q querier, query string, args ...any) ([]*models.Risk, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risks: %w", err)
	}
	defer rows.Close()

	risks := make([]*models.Risk, 0)
	for rows.Next() {
		risk, err := scanRisk(rows)
		if err != nil {
			return nil, err
		}
		risks = append(risks, risk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risks: %w", err)
	}
	return risks, nil
}

func scanRisk(row pgx.Row) (*models.Risk, error) {
	var r models.Risk
	var category, level, status string
	err := row.Scan(
		&r.ID,
		&r.Title,
		&r.Description,
		&category,
		&r.Probability,
		&r.Impact,
		&r.Score,
		&level,
		&r.Consequences,
		&r.ActionPlan,
		&r.IdentifiedAt,
		&r.DueAt,
		&r.Owner,
		&status,
		&r.Notes,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Category = models.RiskCategory(category)
	r.Level = models.RiskLevel(level)
	r.Status = models.RiskStatus(status)
	return &r, nil
}

// mapWriteError translates PostgreSQL constraint failures into app errors.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, apperrors.ErrConflict)
		case "23514", "23502": // check_violation, not_null_violation
			return apperrors.NewValidationError(fmt.Sprintf("Invalid value for %s", constraintField(pgErr)))
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func constraintField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "field"
}
