package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrNotAcquired means the lease is held by someone else and the bounded wait
// elapsed. Callers surface this as a retryable busy signal.
var ErrNotAcquired = errors.New("lock not acquired")

type Store interface {
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

type Config struct {
	TTL            time.Duration
	AcquireTimeout time.Duration
	RetryInterval  time.Duration
}

// Lease is a short-lived mutual-exclusion grant. FailOpen leases carry no
// exclusion guarantee: they are handed out when the lock backend is
// unavailable, trading correctness for availability.
type Lease struct {
	Key      string
	Token    string
	FailOpen bool
}

type Service struct {
	store    Store
	cfg      Config
	breaker  *gobreaker.CircuitBreaker[bool]
	logger   *zap.Logger
	failOpen prometheus.Counter
}

func NewService(store Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:    "lock-backend",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Service{
		store:   store,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger,
	}
}

// AttachFailOpenCounter wires the fail-open metric. Optional.
func (s *Service) AttachFailOpenCounter(counter prometheus.Counter) {
	s.failOpen = counter
}

// Acquire obtains the lease for key, waiting up to the configured bound while
// it is contended. A backend failure (or an open breaker after repeated
// failures) yields a fail-open lease rather than an error.
func (s *Service) Acquire(ctx context.Context, key string) (Lease, error) {
	if key == "" {
		return Lease{}, fmt.Errorf("lock key is required")
	}
	if s.store == nil {
		return s.failOpenLease(key, errors.New("lock store is nil")), nil
	}

	token := uuid.NewString()
	deadline := time.Now().Add(s.cfg.AcquireTimeout)

	for {
		acquired, err := s.breaker.Execute(func() (bool, error) {
			return s.store.TryAcquire(ctx, key, token, s.cfg.TTL)
		})
		if err != nil {
			return s.failOpenLease(key, err), nil
		}
		if acquired {
			return Lease{Key: key, Token: token}, nil
		}

		if time.Now().After(deadline) {
			return Lease{}, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return Lease{}, ctx.Err()
		case <-time.After(s.cfg.RetryInterval):
		}
	}
}

// Release is best-effort: an expired or fail-open lease releases cleanly and
// backend errors are only logged, since the TTL bounds the damage.
func (s *Service) Release(ctx context.Context, lease Lease) {
	if lease.FailOpen || lease.Key == "" || lease.Token == "" || s.store == nil {
		return
	}

	if err := s.store.Release(ctx, lease.Key, lease.Token); err != nil {
		s.logger.Warn("lock release failed", zap.String("key", lease.Key), zap.Error(err))
	}
}

func (s *Service) failOpenLease(key string, cause error) Lease {
	s.logger.Warn("lock backend unavailable, failing open", zap.String("key", key), zap.Error(cause))
	if s.failOpen != nil {
		s.failOpen.Inc()
	}
	return Lease{Key: key, FailOpen: true}
}
