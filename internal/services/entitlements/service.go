package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")

	// ErrUnknownSubscription is a data-integrity error: the event references a
	// subscription we have no record for. It is surfaced, not dropped, so the
	// provider retries and an operator can reconcile.
	ErrUnknownSubscription = errors.New("unknown subscription")
)

type Store interface {
	GetByUserID(ctx context.Context, userID int64) (model.Entitlement, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (model.Entitlement, error)
	EnsureDefault(ctx context.Context, userID int64, now time.Time) (model.Entitlement, error)
	Save(ctx context.Context, tx pgx.Tx, record model.Entitlement) error
}

type QuotaStore interface {
	ResetAllForUser(ctx context.Context, tx pgx.Tx, userID int64) error
}

// Notifier receives the transition's notification side effects. Deliveries
// are best-effort and must never fail the transition.
type Notifier interface {
	Notify(ctx context.Context, userID int64, effect SideEffect)
}

type Dependencies struct {
	Pool     *pgxpool.Pool
	Store    Store
	Quotas   QuotaStore
	Notifier Notifier
}

type Service struct {
	pool     *pgxpool.Pool
	store    Store
	quotas   QuotaStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	runTx    func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type Snapshot struct {
	UserID             int64
	Tier               enums.Tier
	SubscriptionStatus enums.SubscriptionStatus
	PremiumActive      bool
	CurrentPeriodEnd   *time.Time
}

// ApplyResult reports what a processed event did to the entitlement record.
type ApplyResult struct {
	UserID  int64
	Status  enums.SubscriptionStatus
	Tier    enums.Tier
	Changed bool
}

func NewService(deps Dependencies, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &Service{
		pool:     deps.Pool,
		store:    deps.Store,
		quotas:   deps.Quotas,
		notifier: deps.Notifier,
		logger:   logger,
		now:      time.Now,
	}
	svc.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, svc.pool, fn)
	}

	return svc
}

func (s *Service) Get(ctx context.Context, userID int64) (Snapshot, error) {
	if userID <= 0 {
		return Snapshot{}, ErrValidation
	}
	if s.store == nil {
		return Snapshot{}, fmt.Errorf("entitlement store is nil")
	}

	record, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		UserID:             record.UserID,
		Tier:               record.Tier,
		SubscriptionStatus: record.SubscriptionStatus,
		PremiumActive:      record.PremiumActive(s.now().UTC()),
		CurrentPeriodEnd:   record.CurrentPeriodEnd,
	}, nil
}

// Apply runs one verified billing event through the state machine and
// persists the result. The entitlement update and its quota side effects
// commit in one transaction, so a failed event leaves no partial mutation.
func (s *Service) Apply(ctx context.Context, event model.BillingEvent) (ApplyResult, error) {
	if s.store == nil {
		return ApplyResult{}, fmt.Errorf("entitlement dependencies are not configured")
	}

	record, err := s.resolveRecord(ctx, event)
	if err != nil {
		return ApplyResult{}, err
	}

	next, effects, err := Transition(record, event)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply %s to %s: %w", event.Kind, record.SubscriptionStatus, err)
	}

	changed := !next.Equal(record)
	if changed {
		if err := s.persist(ctx, next, effects); err != nil {
			return ApplyResult{}, err
		}
	}

	s.dispatchEffects(ctx, next.UserID, effects)

	return ApplyResult{
		UserID:  next.UserID,
		Status:  next.SubscriptionStatus,
		Tier:    next.Tier,
		Changed: changed,
	}, nil
}

func (s *Service) resolveRecord(ctx context.Context, event model.BillingEvent) (model.Entitlement, error) {
	// The initial create is the only event routed by the payload's user id;
	// everything after routes by the stored subscription id. A create may
	// arrive before registration finished writing the default record, so it
	// is ensured here rather than looked up.
	if event.Kind == enums.BillingSubscriptionCreated {
		if event.UserID <= 0 {
			return model.Entitlement{}, ErrValidation
		}
		record, err := s.store.EnsureDefault(ctx, event.UserID, s.now().UTC())
		if err != nil {
			return model.Entitlement{}, fmt.Errorf("ensure entitlement record: %w", err)
		}
		return record, nil
	}

	if strings.TrimSpace(event.SubscriptionID) == "" {
		return model.Entitlement{}, ErrValidation
	}
	record, err := s.store.FindBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrEntitlementNotFound) {
			return model.Entitlement{}, ErrUnknownSubscription
		}
		return model.Entitlement{}, fmt.Errorf("load entitlement by subscription: %w", err)
	}

	return record, nil
}

func (s *Service) persist(ctx context.Context, record model.Entitlement, effects []SideEffect) error {
	return s.runTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.store.Save(ctx, tx, record); err != nil {
			return fmt.Errorf("save entitlement: %w", err)
		}

		for _, effect := range effects {
			if effect != EffectResetQuotaCounters {
				continue
			}
			if s.quotas == nil {
				return fmt.Errorf("quota store is nil")
			}
			if err := s.quotas.ResetAllForUser(ctx, tx, record.UserID); err != nil {
				return fmt.Errorf("reset quota counters: %w", err)
			}
		}

		return nil
	})
}

func (s *Service) dispatchEffects(ctx context.Context, userID int64, effects []SideEffect) {
	if s.notifier == nil {
		return
	}

	for _, effect := range effects {
		switch effect {
		case EffectSendWelcomeEmail, EffectSendCancellationNotice, EffectSendPaymentFailedAlert:
			s.notifier.Notify(ctx, userID, effect)
		}
	}
}
