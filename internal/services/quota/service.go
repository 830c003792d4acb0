package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ecojiaflow/ecolojia-backend/internal/config"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/rules"
	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
	locksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/lock"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUserNotFound = errors.New("user not found")

	// ErrQuotaBusy is a backpressure signal: the per-(user,resource) lease is
	// contended and the caller should retry. Not an internal failure.
	ErrQuotaBusy = errors.New("quota busy")
)

type EntitlementStore interface {
	GetByUserID(ctx context.Context, userID int64) (model.Entitlement, error)
}

type CounterStore interface {
	Get(ctx context.Context, userID int64, resource enums.ResourceType) (model.QuotaCounter, error)
	ListByUser(ctx context.Context, userID int64) ([]model.QuotaCounter, error)
	ConsumeWithLimit(ctx context.Context, userID int64, resource enums.ResourceType, periodKind enums.PeriodKind, resetAt time.Time, limit int) (int, error)
	Reset(ctx context.Context, userID int64, resource enums.ResourceType, resetAt time.Time) error
}

type LockService interface {
	Acquire(ctx context.Context, key string) (locksvc.Lease, error)
	Release(ctx context.Context, lease locksvc.Lease)
}

type UsageEventStore interface {
	InsertBatch(ctx context.Context, events []pgrepo.UsageEventRecord) error
}

type Ledger struct {
	entitlements EntitlementStore
	counters     CounterStore
	locks        LockService
	table        config.QuotasConfig
	logger       *zap.Logger
	now          func() time.Time

	usage      UsageEventStore
	admissions *prometheus.CounterVec
	busy       prometheus.Counter
}

func NewLedger(
	entitlements EntitlementStore,
	counters CounterStore,
	locks LockService,
	table config.QuotasConfig,
	logger *zap.Logger,
) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		entitlements: entitlements,
		counters:     counters,
		locks:        locks,
		table:        table,
		logger:       logger,
		now:          time.Now,
	}
}

// AttachUsageEvents wires best-effort usage analytics. Optional.
func (l *Ledger) AttachUsageEvents(store UsageEventStore) {
	l.usage = store
}

// AttachMetrics wires the admission counters. Optional.
func (l *Ledger) AttachMetrics(admissions *prometheus.CounterVec, busy prometheus.Counter) {
	l.admissions = admissions
	l.busy = busy
}

// CheckAndConsume admits or rejects one unit of the resource for the user.
// Rejection for an exhausted quota is a normal Admission, not an error; only
// missing users, contention, and infrastructure failures surface as errors.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID int64, resource enums.ResourceType) (model.Admission, error) {
	if userID <= 0 || !resource.Valid() {
		return model.Admission{}, ErrValidation
	}
	if l.entitlements == nil || l.counters == nil || l.locks == nil {
		return model.Admission{}, fmt.Errorf("quota ledger dependencies are not configured")
	}

	now := l.now().UTC()

	tier, err := l.resolveTier(ctx, userID, now)
	if err != nil {
		return model.Admission{}, err
	}
	limit := l.table.Resolve(tier, resource)

	lease, err := l.locks.Acquire(ctx, lockKey(userID, resource))
	if err != nil {
		if errors.Is(err, locksvc.ErrNotAcquired) {
			if l.busy != nil {
				l.busy.Inc()
			}
			return model.Admission{}, ErrQuotaBusy
		}
		return model.Admission{}, fmt.Errorf("acquire quota lease: %w", err)
	}
	defer l.locks.Release(ctx, lease)

	counter, err := l.loadFreshCounter(ctx, userID, resource, limit.Period, now)
	if err != nil {
		return model.Admission{}, err
	}

	// A zero limit can never admit; skip the storage write entirely so the
	// counter is not even lazily created.
	if limit.Limit == 0 {
		admission := model.Admission{
			Allowed:         false,
			ResourceType:    resource,
			Used:            counter.Used,
			Limit:           limit.Limit,
			Remaining:       0,
			ResetAt:         counter.PeriodResetAt,
			RequiresUpgrade: true,
		}
		l.recordAdmission(ctx, userID, admission)
		return admission, nil
	}

	used, err := l.counters.ConsumeWithLimit(ctx, userID, resource, limit.Period, counter.PeriodResetAt, limit.Limit)
	if err != nil {
		if errors.Is(err, pgrepo.ErrQuotaLimitReached) {
			admission := model.Admission{
				Allowed:         false,
				ResourceType:    resource,
				Used:            counter.Used,
				Limit:           limit.Limit,
				Remaining:       0,
				ResetAt:         counter.PeriodResetAt,
				RequiresUpgrade: true,
			}
			l.recordAdmission(ctx, userID, admission)
			return admission, nil
		}
		return model.Admission{}, fmt.Errorf("consume quota: %w", err)
	}

	remaining := model.UnlimitedLimit
	if limit.Limit != model.UnlimitedLimit {
		remaining = limit.Limit - used
	}

	admission := model.Admission{
		Allowed:      true,
		ResourceType: resource,
		Used:         used,
		Limit:        limit.Limit,
		Remaining:    remaining,
		ResetAt:      counter.PeriodResetAt,
	}
	l.recordAdmission(ctx, userID, admission)

	return admission, nil
}

// GetStatus returns the per-resource quota view without consuming. Stale
// periods are presented as already reset; the next consume persists the reset.
func (l *Ledger) GetStatus(ctx context.Context, userID int64) (map[enums.ResourceType]model.Admission, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if l.entitlements == nil || l.counters == nil {
		return nil, fmt.Errorf("quota ledger dependencies are not configured")
	}

	now := l.now().UTC()

	tier, err := l.resolveTier(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	counters, err := l.counters.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list quota counters: %w", err)
	}
	byResource := make(map[enums.ResourceType]model.QuotaCounter, len(counters))
	for _, counter := range counters {
		byResource[counter.ResourceType] = counter
	}

	status := make(map[enums.ResourceType]model.Admission, len(enums.AllResourceTypes()))
	for _, resource := range enums.AllResourceTypes() {
		limit := l.table.Resolve(tier, resource)

		used := 0
		resetAt := rules.NextResetAt(now, limit.Period)
		if counter, ok := byResource[resource]; ok && !rules.PeriodElapsed(now, counter.PeriodResetAt) {
			used = counter.Used
			resetAt = counter.PeriodResetAt
		}

		remaining := model.UnlimitedLimit
		allowed := true
		if limit.Limit != model.UnlimitedLimit {
			remaining = limit.Limit - used
			if remaining < 0 {
				remaining = 0
			}
			allowed = used < limit.Limit
		}

		status[resource] = model.Admission{
			Allowed:         allowed,
			ResourceType:    resource,
			Used:            used,
			Limit:           limit.Limit,
			Remaining:       remaining,
			ResetAt:         resetAt,
			RequiresUpgrade: !allowed,
		}
	}

	return status, nil
}

func (l *Ledger) resolveTier(ctx context.Context, userID int64, now time.Time) (enums.Tier, error) {
	record, err := l.entitlements.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrEntitlementNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("load entitlement: %w", err)
	}

	if record.PremiumActive(now) {
		return enums.TierPremium, nil
	}
	return enums.TierFree, nil
}

// loadFreshCounter loads the counter under the lease and applies the lazy
// period reset: a counter whose boundary passed (however many periods ago) is
// zeroed and advanced to the boundary after now before any consume.
func (l *Ledger) loadFreshCounter(
	ctx context.Context,
	userID int64,
	resource enums.ResourceType,
	period enums.PeriodKind,
	now time.Time,
) (model.QuotaCounter, error) {
	counter, err := l.counters.Get(ctx, userID, resource)
	if err != nil {
		if errors.Is(err, pgrepo.ErrQuotaCounterNotFound) {
			return model.QuotaCounter{
				UserID:        userID,
				ResourceType:  resource,
				PeriodKind:    period,
				Used:          0,
				PeriodResetAt: rules.NextResetAt(now, period),
			}, nil
		}
		return model.QuotaCounter{}, fmt.Errorf("load quota counter: %w", err)
	}

	if rules.PeriodElapsed(now, counter.PeriodResetAt) {
		resetAt := rules.NextResetAt(now, period)
		if err := l.counters.Reset(ctx, userID, resource, resetAt); err != nil {
			return model.QuotaCounter{}, fmt.Errorf("reset stale quota counter: %w", err)
		}
		counter.Used = 0
		counter.PeriodResetAt = resetAt
	}

	return counter, nil
}

// recordAdmission emits the usage event and metrics. Best effort: failures
// are logged and never block or fail the admission itself.
func (l *Ledger) recordAdmission(ctx context.Context, userID int64, admission model.Admission) {
	if l.admissions != nil {
		l.admissions.WithLabelValues(string(admission.ResourceType), strconv.FormatBool(admission.Allowed)).Inc()
	}
	if l.usage == nil {
		return
	}

	event := pgrepo.UsageEventRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       "quota_admission",
		OccurredAt: l.now().UTC(),
		Props: map[string]any{
			"resource":  string(admission.ResourceType),
			"allowed":   admission.Allowed,
			"used":      admission.Used,
			"limit":     admission.Limit,
			"remaining": admission.Remaining,
		},
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.usage.InsertBatch(writeCtx, []pgrepo.UsageEventRecord{event}); err != nil {
			l.logger.Warn("usage event write failed", zap.Error(err))
		}
	}()
}

func lockKey(userID int64, resource enums.ResourceType) string {
	return "lock:quota:" + strconv.FormatInt(userID, 10) + ":" + string(resource)
}
