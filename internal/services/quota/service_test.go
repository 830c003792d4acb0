package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/config"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
	locksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/lock"
)

type entitlementStoreStub struct {
	records map[int64]model.Entitlement
}

func (s *entitlementStoreStub) GetByUserID(_ context.Context, userID int64) (model.Entitlement, error) {
	record, ok := s.records[userID]
	if !ok {
		return model.Entitlement{}, pgrepo.ErrEntitlementNotFound
	}
	return record, nil
}

type counterKey struct {
	userID   int64
	resource enums.ResourceType
}

type counterStoreStub struct {
	counters map[counterKey]model.QuotaCounter
}

func newCounterStoreStub() *counterStoreStub {
	return &counterStoreStub{counters: make(map[counterKey]model.QuotaCounter)}
}

func (s *counterStoreStub) Get(_ context.Context, userID int64, resource enums.ResourceType) (model.QuotaCounter, error) {
	counter, ok := s.counters[counterKey{userID, resource}]
	if !ok {
		return model.QuotaCounter{}, pgrepo.ErrQuotaCounterNotFound
	}
	return counter, nil
}

func (s *counterStoreStub) ListByUser(_ context.Context, userID int64) ([]model.QuotaCounter, error) {
	var out []model.QuotaCounter
	for key, counter := range s.counters {
		if key.userID == userID {
			out = append(out, counter)
		}
	}
	return out, nil
}

func (s *counterStoreStub) ConsumeWithLimit(
	_ context.Context,
	userID int64,
	resource enums.ResourceType,
	periodKind enums.PeriodKind,
	resetAt time.Time,
	limit int,
) (int, error) {
	key := counterKey{userID, resource}
	counter, ok := s.counters[key]
	if !ok {
		counter = model.QuotaCounter{
			UserID:        userID,
			ResourceType:  resource,
			PeriodKind:    periodKind,
			PeriodResetAt: resetAt,
		}
	}
	if limit >= 0 && counter.Used >= limit {
		return 0, pgrepo.ErrQuotaLimitReached
	}
	counter.Used++
	s.counters[key] = counter
	return counter.Used, nil
}

func (s *counterStoreStub) Reset(_ context.Context, userID int64, resource enums.ResourceType, resetAt time.Time) error {
	key := counterKey{userID, resource}
	counter := s.counters[key]
	counter.Used = 0
	counter.PeriodResetAt = resetAt
	s.counters[key] = counter
	return nil
}

type lockServiceStub struct {
	busy     bool
	acquired int
	released int
}

func (s *lockServiceStub) Acquire(_ context.Context, key string) (locksvc.Lease, error) {
	if s.busy {
		return locksvc.Lease{}, locksvc.ErrNotAcquired
	}
	s.acquired++
	return locksvc.Lease{Key: key, Token: "test"}, nil
}

func (s *lockServiceStub) Release(_ context.Context, _ locksvc.Lease) {
	s.released++
}

func fixedNow() time.Time {
	return time.Date(2025, time.June, 10, 15, 0, 0, 0, time.UTC)
}

func newTestLedger(ents *entitlementStoreStub, counters *counterStoreStub, locks *lockServiceStub) *Ledger {
	ledger := NewLedger(ents, counters, locks, config.Default().Quotas, nil)
	ledger.now = fixedNow
	return ledger
}

func freeUser(userID int64) *entitlementStoreStub {
	return &entitlementStoreStub{records: map[int64]model.Entitlement{
		userID: {
			UserID:             userID,
			Tier:               enums.TierFree,
			SubscriptionStatus: enums.SubscriptionNone,
		},
	}}
}

func premiumUser(userID int64) *entitlementStoreStub {
	return &entitlementStoreStub{records: map[int64]model.Entitlement{
		userID: {
			UserID:             userID,
			Tier:               enums.TierPremium,
			SubscriptionStatus: enums.SubscriptionActive,
		},
	}}
}

func TestCheckAndConsumeDeniesAtLimit(t *testing.T) {
	counters := newCounterStoreStub()
	counters.counters[counterKey{42, enums.ResourceScan}] = model.QuotaCounter{
		UserID:        42,
		ResourceType:  enums.ResourceScan,
		PeriodKind:    enums.PeriodMonthly,
		Used:          30,
		PeriodResetAt: fixedNow().Add(24 * time.Hour),
	}
	locks := &lockServiceStub{}
	ledger := newTestLedger(freeUser(42), counters, locks)

	admission, err := ledger.CheckAndConsume(context.Background(), 42, enums.ResourceScan)
	if err != nil {
		t.Fatalf("check and consume: %v", err)
	}
	if admission.Allowed {
		t.Fatalf("expected denial at limit")
	}
	if admission.Remaining != 0 || !admission.RequiresUpgrade {
		t.Fatalf("unexpected denial admission: %+v", admission)
	}
	if got := counters.counters[counterKey{42, enums.ResourceScan}].Used; got != 30 {
		t.Fatalf("denial must not mutate used, got %d", got)
	}
	if locks.released != locks.acquired {
		t.Fatalf("lease leak: acquired=%d released=%d", locks.acquired, locks.released)
	}
}

func TestCheckAndConsumeLastUnit(t *testing.T) {
	counters := newCounterStoreStub()
	counters.counters[counterKey{42, enums.ResourceScan}] = model.QuotaCounter{
		UserID:        42,
		ResourceType:  enums.ResourceScan,
		PeriodKind:    enums.PeriodMonthly,
		Used:          29,
		PeriodResetAt: fixedNow().Add(24 * time.Hour),
	}
	ledger := newTestLedger(freeUser(42), counters, &lockServiceStub{})

	admission, err := ledger.CheckAndConsume(context.Background(), 42, enums.ResourceScan)
	if err != nil {
		t.Fatalf("check and consume: %v", err)
	}
	if !admission.Allowed || admission.Remaining != 0 {
		t.Fatalf("unexpected admission for last unit: %+v", admission)
	}
	if got := counters.counters[counterKey{42, enums.ResourceScan}].Used; got != 30 {
		t.Fatalf("used should be 30, got %d", got)
	}
}

func TestCheckAndConsumeUnlimitedStillCounts(t *testing.T) {
	counters := newCounterStoreStub()
	ledger := newTestLedger(premiumUser(7), counters, &lockServiceStub{})

	for i := 0; i < 3; i++ {
		admission, err := ledger.CheckAndConsume(context.Background(), 7, enums.ResourceScan)
		if err != nil {
			t.Fatalf("check and consume #%d: %v", i+1, err)
		}
		if !admission.Allowed || admission.Remaining != model.UnlimitedLimit {
			t.Fatalf("unexpected unlimited admission: %+v", admission)
		}
	}

	if got := counters.counters[counterKey{7, enums.ResourceScan}].Used; got != 3 {
		t.Fatalf("unlimited tier should still count usage, got %d", got)
	}
}

func TestCheckAndConsumeZeroLimitNeverCreatesCounter(t *testing.T) {
	counters := newCounterStoreStub()
	ledger := newTestLedger(freeUser(42), counters, &lockServiceStub{})

	admission, err := ledger.CheckAndConsume(context.Background(), 42, enums.ResourceAIQuestion)
	if err != nil {
		t.Fatalf("check and consume: %v", err)
	}
	if admission.Allowed || !admission.RequiresUpgrade {
		t.Fatalf("zero limit must deny with upgrade hint: %+v", admission)
	}
	if len(counters.counters) != 0 {
		t.Fatalf("zero limit must not create a counter")
	}
}

func TestCheckAndConsumeLazyResetAfterSkippedPeriods(t *testing.T) {
	counters := newCounterStoreStub()
	// Counter went stale two months ago and was never touched since.
	counters.counters[counterKey{42, enums.ResourceScan}] = model.QuotaCounter{
		UserID:        42,
		ResourceType:  enums.ResourceScan,
		PeriodKind:    enums.PeriodMonthly,
		Used:          30,
		PeriodResetAt: fixedNow().AddDate(0, -2, 0),
	}
	ledger := newTestLedger(freeUser(42), counters, &lockServiceStub{})

	admission, err := ledger.CheckAndConsume(context.Background(), 42, enums.ResourceScan)
	if err != nil {
		t.Fatalf("check and consume: %v", err)
	}
	if !admission.Allowed || admission.Used != 1 {
		t.Fatalf("expected fresh period admission, got %+v", admission)
	}

	wantReset := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	if !admission.ResetAt.Equal(wantReset) {
		t.Fatalf("reset boundary not advanced past now: got %v want %v", admission.ResetAt, wantReset)
	}
	if got := counters.counters[counterKey{42, enums.ResourceScan}].Used; got != 1 {
		t.Fatalf("counter should hold the single fresh consume, got %d", got)
	}
}

func TestCheckAndConsumeBusyLease(t *testing.T) {
	ledger := newTestLedger(freeUser(42), newCounterStoreStub(), &lockServiceStub{busy: true})

	_, err := ledger.CheckAndConsume(context.Background(), 42, enums.ResourceScan)
	if !errors.Is(err, ErrQuotaBusy) {
		t.Fatalf("expected ErrQuotaBusy, got %v", err)
	}
}

func TestCheckAndConsumeUnknownUser(t *testing.T) {
	ledger := newTestLedger(&entitlementStoreStub{records: map[int64]model.Entitlement{}}, newCounterStoreStub(), &lockServiceStub{})

	_, err := ledger.CheckAndConsume(context.Background(), 99, enums.ResourceScan)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCancelledPremiumKeepsLimitsUntilPeriodEnd(t *testing.T) {
	periodEnd := fixedNow().Add(48 * time.Hour)
	ents := &entitlementStoreStub{records: map[int64]model.Entitlement{
		7: {
			UserID:             7,
			Tier:               enums.TierPremium,
			SubscriptionStatus: enums.SubscriptionCancelled,
			CurrentPeriodEnd:   &periodEnd,
		},
	}}
	ledger := newTestLedger(ents, newCounterStoreStub(), &lockServiceStub{})

	admission, err := ledger.CheckAndConsume(context.Background(), 7, enums.ResourceAIQuestion)
	if err != nil {
		t.Fatalf("check and consume: %v", err)
	}
	if !admission.Allowed || admission.Limit != model.UnlimitedLimit {
		t.Fatalf("cancelled-but-not-expired premium should keep unlimited limits: %+v", admission)
	}
}

func TestGetStatusAppliesLazyResetWithoutConsuming(t *testing.T) {
	counters := newCounterStoreStub()
	counters.counters[counterKey{42, enums.ResourceScan}] = model.QuotaCounter{
		UserID:        42,
		ResourceType:  enums.ResourceScan,
		PeriodKind:    enums.PeriodMonthly,
		Used:          30,
		PeriodResetAt: fixedNow().Add(-time.Hour),
	}
	ledger := newTestLedger(freeUser(42), counters, &lockServiceStub{})

	status, err := ledger.GetStatus(context.Background(), 42)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}

	scan := status[enums.ResourceScan]
	if scan.Used != 0 || scan.Remaining != 30 || !scan.Allowed {
		t.Fatalf("stale counter should read as reset: %+v", scan)
	}
	if !scan.ResetAt.After(fixedNow()) {
		t.Fatalf("reset boundary should be in the future, got %v", scan.ResetAt)
	}

	// Read-only view: the stored counter must be untouched.
	if got := counters.counters[counterKey{42, enums.ResourceScan}].Used; got != 30 {
		t.Fatalf("get status must not persist the reset, got used=%d", got)
	}

	ai := status[enums.ResourceAIQuestion]
	if ai.Allowed || ai.Limit != 0 || !ai.RequiresUpgrade {
		t.Fatalf("free ai_question should be denied: %+v", ai)
	}
}
