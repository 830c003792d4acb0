package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job prunes processed-webhook records once they are old enough that the
// billing provider will never legitimately redeliver them.
type Job struct {
	cleaner   idempotencyCleaner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type idempotencyCleaner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func New(cleaner idempotencyCleaner, retention, interval time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		cleaner:   cleaner,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Run executes a single cleanup pass.
func (j *Job) Run(ctx context.Context) error {
	if j.cleaner == nil {
		return nil
	}

	cutoff := j.now().UTC().Add(-j.retention)
	rows, err := j.cleaner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup idempotency records: %w", err)
	}
	if rows > 0 {
		j.logger.Info("cleanup idempotency records completed",
			zap.Int64("deleted", rows),
			zap.Time("cutoff", cutoff))
	}

	return nil
}

// Start runs cleanup passes on a ticker until the context is cancelled.
// Faults are logged and the next pass retries.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup pass failed", zap.Error(err))
			}
		}
	}
}
