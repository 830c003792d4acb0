package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/config"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
	identitysvc "github.com/ecojiaflow/ecolojia-backend/internal/services/identity"
	locksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/lock"
	quotasvc "github.com/ecojiaflow/ecolojia-backend/internal/services/quota"
	"github.com/ecojiaflow/ecolojia-backend/internal/transport/http/dto"
	httperrors "github.com/ecojiaflow/ecolojia-backend/internal/transport/http/errors"
)

type handlerEntStore struct {
	record model.Entitlement
}

func (s handlerEntStore) GetByUserID(_ context.Context, userID int64) (model.Entitlement, error) {
	if userID != s.record.UserID {
		return model.Entitlement{}, pgrepo.ErrEntitlementNotFound
	}
	return s.record, nil
}

type handlerCounterStore struct {
	used map[enums.ResourceType]int
}

func (s *handlerCounterStore) Get(_ context.Context, userID int64, resource enums.ResourceType) (model.QuotaCounter, error) {
	used, ok := s.used[resource]
	if !ok {
		return model.QuotaCounter{}, pgrepo.ErrQuotaCounterNotFound
	}
	return model.QuotaCounter{
		UserID:        userID,
		ResourceType:  resource,
		Used:          used,
		PeriodResetAt: time.Now().UTC().Add(24 * time.Hour),
	}, nil
}

func (s *handlerCounterStore) ListByUser(_ context.Context, userID int64) ([]model.QuotaCounter, error) {
	var counters []model.QuotaCounter
	for resource, used := range s.used {
		counters = append(counters, model.QuotaCounter{
			UserID:        userID,
			ResourceType:  resource,
			Used:          used,
			PeriodResetAt: time.Now().UTC().Add(24 * time.Hour),
		})
	}
	return counters, nil
}

func (s *handlerCounterStore) ConsumeWithLimit(_ context.Context, _ int64, resource enums.ResourceType, _ enums.PeriodKind, _ time.Time, limit int) (int, error) {
	if s.used == nil {
		s.used = map[enums.ResourceType]int{}
	}
	if limit >= 0 && s.used[resource] >= limit {
		return 0, pgrepo.ErrQuotaLimitReached
	}
	s.used[resource]++
	return s.used[resource], nil
}

func (s *handlerCounterStore) Reset(_ context.Context, _ int64, resource enums.ResourceType, _ time.Time) error {
	delete(s.used, resource)
	return nil
}

type handlerLocks struct{}

func (handlerLocks) Acquire(_ context.Context, key string) (locksvc.Lease, error) {
	return locksvc.Lease{Key: key, Token: "test"}, nil
}

func (handlerLocks) Release(_ context.Context, _ locksvc.Lease) {}

func newTestLedger(record model.Entitlement, used map[enums.ResourceType]int) *quotasvc.Ledger {
	return quotasvc.NewLedger(
		handlerEntStore{record: record},
		&handlerCounterStore{used: used},
		handlerLocks{},
		config.Default().Quotas,
		nil,
	)
}

func identifiedRequest(method, target string, userID int64) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(identitysvc.WithIdentity(req.Context(), identitysvc.Identity{UserID: userID}))
}

func TestScanAdmitsFreeUserUnderLimit(t *testing.T) {
	ledger := newTestLedger(model.Entitlement{UserID: 7, Tier: enums.TierFree, SubscriptionStatus: enums.SubscriptionNone}, nil)
	handler := NewMeteredHandler(ledger)

	rr := httptest.NewRecorder()
	handler.Scan(rr, identifiedRequest(http.MethodPost, "/scan", 7))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	var payload dto.AdmissionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Resource != "scan" || payload.Used != 1 || payload.Remaining != 29 {
		t.Fatalf("unexpected admission payload: %+v", payload)
	}
}

func TestScanDeniesExhaustedQuotaWithUpgradeHint(t *testing.T) {
	ledger := newTestLedger(
		model.Entitlement{UserID: 7, Tier: enums.TierFree, SubscriptionStatus: enums.SubscriptionNone},
		map[enums.ResourceType]int{enums.ResourceScan: 30},
	)
	handler := NewMeteredHandler(ledger)

	rr := httptest.NewRecorder()
	handler.Scan(rr, identifiedRequest(http.MethodPost, "/scan", 7))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusTooManyRequests)
	}

	var payload httperrors.QuotaError
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "QUOTA_EXCEEDED" || !payload.RequiresUpgrade {
		t.Fatalf("unexpected denial payload: %+v", payload)
	}
}

func TestExportRequiresIdentity(t *testing.T) {
	handler := NewMeteredHandler(newTestLedger(model.Entitlement{UserID: 7}, nil))

	rr := httptest.NewRecorder()
	handler.Export(rr, httptest.NewRequest(http.MethodPost, "/export", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestScanUnknownUserReturnsNotFound(t *testing.T) {
	handler := NewMeteredHandler(newTestLedger(model.Entitlement{UserID: 7}, nil))

	rr := httptest.NewRecorder()
	handler.Scan(rr, identifiedRequest(http.MethodPost, "/scan", 999))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestQuotaStatusListsResources(t *testing.T) {
	ledger := newTestLedger(
		model.Entitlement{UserID: 7, Tier: enums.TierFree, SubscriptionStatus: enums.SubscriptionNone},
		map[enums.ResourceType]int{enums.ResourceScan: 12},
	)
	handler := NewQuotaHandler(ledger)

	rr := httptest.NewRecorder()
	handler.Handle(rr, identifiedRequest(http.MethodGet, "/quota", 7))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	var payload dto.QuotaStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	scan, ok := payload.Resources["scan"]
	if !ok {
		t.Fatalf("scan resource missing from status: %+v", payload)
	}
	if scan.Used != 12 || scan.Limit != 30 || scan.Remaining != 18 {
		t.Fatalf("unexpected scan status: %+v", scan)
	}
}
