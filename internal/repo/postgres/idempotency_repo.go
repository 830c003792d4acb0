package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
)

var ErrIdempotencyNotFound = errors.New("idempotency record not found")

type IdempotencyRepo struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepo(pool *pgxpool.Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

func (r *IdempotencyRepo) Find(ctx context.Context, eventID string) (model.IdempotencyRecord, error) {
	if strings.TrimSpace(eventID) == "" {
		return model.IdempotencyRecord{}, fmt.Errorf("event id is required")
	}
	if r.pool == nil {
		return model.IdempotencyRecord{}, ErrIdempotencyNotFound
	}

	var record model.IdempotencyRecord
	err := r.pool.QueryRow(ctx, `
SELECT event_id, event_type, processed_at, outcome
FROM idempotency_log
WHERE event_id = $1
LIMIT 1
`, eventID).Scan(&record.EventID, &record.EventType, &record.ProcessedAt, &record.Outcome)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.IdempotencyRecord{}, ErrIdempotencyNotFound
		}
		return model.IdempotencyRecord{}, fmt.Errorf("find idempotency record: %w", err)
	}

	return record, nil
}

// Insert records a processed event. The unique event_id constraint makes the
// write race-safe: the second of two concurrent ingests observes inserted=false.
func (r *IdempotencyRepo) Insert(ctx context.Context, record model.IdempotencyRecord) (bool, error) {
	if strings.TrimSpace(record.EventID) == "" || strings.TrimSpace(record.EventType) == "" {
		return false, fmt.Errorf("invalid idempotency record")
	}
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	processedAt := record.ProcessedAt.UTC()
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	tag, err := r.pool.Exec(ctx, `
INSERT INTO idempotency_log (
	event_id,
	event_type,
	processed_at,
	outcome
) VALUES ($1, $2, $3, $4)
ON CONFLICT (event_id) DO NOTHING
`, record.EventID, record.EventType, processedAt, record.Outcome)
	if err != nil {
		return false, fmt.Errorf("insert idempotency record: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteOlderThan garbage-collects records past the retention window.
func (r *IdempotencyRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}
	if r.pool == nil {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM idempotency_log
WHERE processed_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	return tag.RowsAffected(), nil
}
