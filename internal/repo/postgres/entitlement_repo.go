package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
)

var ErrEntitlementNotFound = errors.New("entitlement not found")

type EntitlementRepo struct {
	pool *pgxpool.Pool
}

func NewEntitlementRepo(pool *pgxpool.Pool) *EntitlementRepo {
	return &EntitlementRepo{pool: pool}
}

const entitlementColumns = `
	user_id,
	tier,
	subscription_status,
	current_period_end,
	provider_subscription_id,
	provider_customer_id,
	updated_at
`

func (r *EntitlementRepo) GetByUserID(ctx context.Context, userID int64) (model.Entitlement, error) {
	if userID <= 0 {
		return model.Entitlement{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.Entitlement{}, ErrEntitlementNotFound
	}

	row := r.pool.QueryRow(ctx, `
SELECT `+entitlementColumns+`
FROM entitlements
WHERE user_id = $1
LIMIT 1
`, userID)

	return scanEntitlement(row)
}

func (r *EntitlementRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (model.Entitlement, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return model.Entitlement{}, fmt.Errorf("subscription id is required")
	}
	if r.pool == nil {
		return model.Entitlement{}, ErrEntitlementNotFound
	}

	row := r.pool.QueryRow(ctx, `
SELECT `+entitlementColumns+`
FROM entitlements
WHERE provider_subscription_id = $1
LIMIT 1
`, subscriptionID)

	return scanEntitlement(row)
}

// EnsureDefault creates the registration-time record (free tier, no
// subscription) if the user has none yet, and returns the current row.
func (r *EntitlementRepo) EnsureDefault(ctx context.Context, userID int64, now time.Time) (model.Entitlement, error) {
	if userID <= 0 {
		return model.Entitlement{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.Entitlement{}, fmt.Errorf("postgres pool is nil")
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO entitlements (
	user_id,
	tier,
	subscription_status,
	updated_at
) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET user_id = entitlements.user_id
RETURNING `+entitlementColumns+`
`, userID, enums.TierFree, enums.SubscriptionNone, now.UTC())

	return scanEntitlement(row)
}

// Save persists a state-machine transition result inside the caller's
// transaction. Entitlement rows are never deleted, only transitioned, so this
// is a plain full-row update.
func (r *EntitlementRepo) Save(ctx context.Context, tx pgx.Tx, record model.Entitlement) error {
	if record.UserID <= 0 {
		return fmt.Errorf("invalid entitlement record")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	tag, err := tx.Exec(ctx, `
UPDATE entitlements
SET
	tier = $2,
	subscription_status = $3,
	current_period_end = $4,
	provider_subscription_id = $5,
	provider_customer_id = $6,
	updated_at = NOW()
WHERE user_id = $1
`,
		record.UserID,
		record.Tier,
		record.SubscriptionStatus,
		record.CurrentPeriodEnd,
		record.ProviderSubscriptionID,
		record.ProviderCustomerID,
	)
	if err != nil {
		return fmt.Errorf("save entitlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntitlementNotFound
	}

	return nil
}

func scanEntitlement(row pgx.Row) (model.Entitlement, error) {
	var record model.Entitlement
	err := row.Scan(
		&record.UserID,
		&record.Tier,
		&record.SubscriptionStatus,
		&record.CurrentPeriodEnd,
		&record.ProviderSubscriptionID,
		&record.ProviderCustomerID,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entitlement{}, ErrEntitlementNotFound
		}
		return model.Entitlement{}, fmt.Errorf("scan entitlement: %w", err)
	}

	return record, nil
}
