package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
)

var (
	ErrQuotaCounterNotFound = errors.New("quota counter not found")
	ErrQuotaLimitReached    = errors.New("quota limit reached")
)

type QuotaRepo struct {
	pool *pgxpool.Pool
}

func NewQuotaRepo(pool *pgxpool.Pool) *QuotaRepo {
	return &QuotaRepo{pool: pool}
}

func (r *QuotaRepo) Get(ctx context.Context, userID int64, resource enums.ResourceType) (model.QuotaCounter, error) {
	if userID <= 0 || !resource.Valid() {
		return model.QuotaCounter{}, fmt.Errorf("invalid quota lookup payload")
	}
	if r.pool == nil {
		return model.QuotaCounter{}, ErrQuotaCounterNotFound
	}

	var counter model.QuotaCounter
	err := r.pool.QueryRow(ctx, `
SELECT user_id, resource_type, period_kind, used, period_reset_at, updated_at
FROM quota_counters
WHERE user_id = $1 AND resource_type = $2
LIMIT 1
`, userID, resource).Scan(
		&counter.UserID,
		&counter.ResourceType,
		&counter.PeriodKind,
		&counter.Used,
		&counter.PeriodResetAt,
		&counter.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.QuotaCounter{}, ErrQuotaCounterNotFound
		}
		return model.QuotaCounter{}, fmt.Errorf("get quota counter: %w", err)
	}

	return counter, nil
}

func (r *QuotaRepo) ListByUser(ctx context.Context, userID int64) ([]model.QuotaCounter, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT user_id, resource_type, period_kind, used, period_reset_at, updated_at
FROM quota_counters
WHERE user_id = $1
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quota counters: %w", err)
	}
	defer rows.Close()

	var counters []model.QuotaCounter
	for rows.Next() {
		var counter model.QuotaCounter
		if err := rows.Scan(
			&counter.UserID,
			&counter.ResourceType,
			&counter.PeriodKind,
			&counter.Used,
			&counter.PeriodResetAt,
			&counter.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan quota counter: %w", err)
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quota counters: %w", err)
	}

	return counters, nil
}

// ConsumeWithLimit is the single atomic check-and-increment. The counter row
// is created lazily on first consumption. A negative limit means unlimited:
// the bound predicate passes and used is still incremented for analytics.
// Correctness does not depend on the advisory lease; the WHERE clause is the
// authoritative guard against over-consumption.
func (r *QuotaRepo) ConsumeWithLimit(
	ctx context.Context,
	userID int64,
	resource enums.ResourceType,
	periodKind enums.PeriodKind,
	resetAt time.Time,
	limit int,
) (int, error) {
	if userID <= 0 || !resource.Valid() || resetAt.IsZero() {
		return 0, fmt.Errorf("invalid quota consume payload")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var used int
	err := r.pool.QueryRow(ctx, `
INSERT INTO quota_counters (
	user_id,
	resource_type,
	period_kind,
	used,
	period_reset_at,
	updated_at
) VALUES ($1, $2, $3, 1, $4, NOW())
ON CONFLICT (user_id, resource_type) DO UPDATE SET
	used = quota_counters.used + 1,
	period_kind = EXCLUDED.period_kind,
	updated_at = NOW()
WHERE $5 < 0 OR quota_counters.used < $5
RETURNING used
`, userID, resource, periodKind, resetAt.UTC(), limit).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrQuotaLimitReached
		}
		return 0, fmt.Errorf("consume quota with limit: %w", err)
	}

	return used, nil
}

// Reset zeroes a stale counter and advances its reset boundary. Called under
// the lease when the ledger observes an elapsed period.
func (r *QuotaRepo) Reset(ctx context.Context, userID int64, resource enums.ResourceType, resetAt time.Time) error {
	if userID <= 0 || !resource.Valid() || resetAt.IsZero() {
		return fmt.Errorf("invalid quota reset payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE quota_counters
SET
	used = 0,
	period_reset_at = $3,
	updated_at = NOW()
WHERE user_id = $1 AND resource_type = $2
`, userID, resource, resetAt.UTC()); err != nil {
		return fmt.Errorf("reset quota counter: %w", err)
	}

	return nil
}

// ResetAllForUser zeroes every counter for the user inside the caller's
// transaction. Used when a subscription expires and the account falls back to
// free-tier limits together with the entitlement update.
func (r *QuotaRepo) ResetAllForUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
UPDATE quota_counters
SET
	used = 0,
	updated_at = NOW()
WHERE user_id = $1
`, userID); err != nil {
		return fmt.Errorf("reset user quota counters: %w", err)
	}

	return nil
}
