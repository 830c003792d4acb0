package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageEventRepo struct {
	pool *pgxpool.Pool
}

type UsageEventRecord struct {
	ID         string
	UserID     int64
	Name       string
	OccurredAt time.Time
	Props      map[string]any
}

func NewUsageEventRepo(pool *pgxpool.Pool) *UsageEventRepo {
	return &UsageEventRepo{pool: pool}
}

func (r *UsageEventRepo) InsertBatch(ctx context.Context, events []UsageEventRecord) error {
	if len(events) == 0 {
		return nil
	}
	if r.pool == nil {
		return nil
	}

	const query = `
INSERT INTO usage_events (
	id,
	user_id,
	name,
	payload,
	occurred_at,
	created_at
) VALUES (
	$1,
	$2,
	$3,
	$4::jsonb,
	$5,
	NOW()
)
`

	batch := &pgx.Batch{}
	for _, event := range events {
		payload, err := json.Marshal(event.Props)
		if err != nil {
			return fmt.Errorf("marshal usage event props: %w", err)
		}

		occurredAt := event.OccurredAt.UTC()
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}
		batch.Queue(query, event.ID, event.UserID, event.Name, string(payload), occurredAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert usage event #%d: %w", i, err)
		}
	}

	return nil
}
