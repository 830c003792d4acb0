package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
	"github.com/ecojiaflow/ecolojia-backend/internal/pkg/validate"
	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
	entsvc "github.com/ecojiaflow/ecolojia-backend/internal/services/entitlements"
)

var (
	// ErrInvalidSignature and ErrStaleEvent are security rejections. Their
	// handling never echoes the payload and is never retried by us.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleEvent       = errors.New("stale webhook event")

	ErrValidation = errors.New("validation error")
)

type IngestStatus string

const (
	StatusSuccess          IngestStatus = "success"
	StatusAlreadyProcessed IngestStatus = "already_processed"
	StatusIgnored          IngestStatus = "ignored"
)

type IngestResult struct {
	Status    IngestStatus
	EventID   string
	EventName string
	Applied   *entsvc.ApplyResult
}

type IdempotencyStore interface {
	Find(ctx context.Context, eventID string) (model.IdempotencyRecord, error)
	Insert(ctx context.Context, record model.IdempotencyRecord) (bool, error)
}

type EventApplier interface {
	Apply(ctx context.Context, event model.BillingEvent) (entsvc.ApplyResult, error)
}

type Config struct {
	Secret       string
	ReplayWindow time.Duration
}

type Service struct {
	idempotency IdempotencyStore
	applier     EventApplier
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
	events      *prometheus.CounterVec
}

func NewService(idempotency IdempotencyStore, applier EventApplier, cfg Config, logger *zap.Logger) *Service {
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		idempotency: idempotency,
		applier:     applier,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// AttachMetrics wires the per-event ingest counter. Optional.
func (s *Service) AttachMetrics(events *prometheus.CounterVec) {
	s.events = events
}

// envelope is the provider's wire format, decoded only after the signature
// over the raw bytes has been verified.
type envelope struct {
	Meta struct {
		EventName      string    `json:"event_name"`
		EventCreatedAt time.Time `json:"event_created_at"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			SubscriptionID string     `json:"subscription_id"`
			CustomerID     string     `json:"customer_id"`
			UserID         int64      `json:"user_id"`
			Status         string     `json:"status"`
			RenewsAt       *time.Time `json:"renews_at"`
			EndsAt         *time.Time `json:"ends_at"`
		} `json:"attributes"`
	} `json:"data"`
}

// Ingest verifies, deduplicates, and dispatches one raw webhook delivery.
// The idempotency record is written only after a successful dispatch, so a
// failed event stays unrecorded and the provider's retry gets a clean run.
func (s *Service) Ingest(ctx context.Context, rawBody []byte, signature string) (IngestResult, error) {
	if s.idempotency == nil || s.applier == nil {
		return IngestResult{}, fmt.Errorf("webhook dependencies are not configured")
	}
	if len(rawBody) == 0 {
		return IngestResult{}, ErrValidation
	}

	if !s.verifySignature(rawBody, signature) {
		s.logger.Warn("webhook signature mismatch")
		s.countEvent("unknown", "invalid_signature")
		return IngestResult{}, ErrInvalidSignature
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		s.countEvent("unknown", "malformed")
		return IngestResult{}, fmt.Errorf("%w: malformed payload", ErrValidation)
	}

	eventName := strings.TrimSpace(env.Meta.EventName)
	eventID := strings.TrimSpace(env.Data.ID)
	if !validate.Required(eventName) || !validate.Required(eventID) || env.Meta.EventCreatedAt.IsZero() {
		s.countEvent(eventName, "malformed")
		return IngestResult{}, fmt.Errorf("%w: missing event envelope fields", ErrValidation)
	}

	now := s.now().UTC()
	if now.Sub(env.Meta.EventCreatedAt.UTC()) > s.cfg.ReplayWindow {
		s.logger.Warn("webhook event outside replay window",
			zap.String("event_id", eventID),
			zap.Time("event_created_at", env.Meta.EventCreatedAt))
		s.countEvent(eventName, "stale")
		return IngestResult{}, ErrStaleEvent
	}

	if _, err := s.idempotency.Find(ctx, eventID); err == nil {
		s.countEvent(eventName, "already_processed")
		return IngestResult{Status: StatusAlreadyProcessed, EventID: eventID, EventName: eventName}, nil
	} else if !errors.Is(err, pgrepo.ErrIdempotencyNotFound) {
		return IngestResult{}, fmt.Errorf("lookup idempotency record: %w", err)
	}

	kind := enums.ParseBillingEventKind(eventName)
	if kind == enums.BillingUnknown {
		if err := s.record(ctx, eventID, eventName, string(StatusIgnored)); err != nil {
			return IngestResult{}, err
		}
		s.countEvent(eventName, "ignored")
		return IngestResult{Status: StatusIgnored, EventID: eventID, EventName: eventName}, nil
	}

	event := model.BillingEvent{
		ID:             eventID,
		Kind:           kind,
		CreatedAt:      env.Meta.EventCreatedAt.UTC(),
		SubscriptionID: strings.TrimSpace(env.Data.Attributes.SubscriptionID),
		CustomerID:     strings.TrimSpace(env.Data.Attributes.CustomerID),
		UserID:         env.Data.Attributes.UserID,
		Status:         strings.TrimSpace(env.Data.Attributes.Status),
		RenewsAt:       env.Data.Attributes.RenewsAt,
		EndsAt:         env.Data.Attributes.EndsAt,
	}

	applied, err := s.applier.Apply(ctx, event)
	if err != nil {
		s.countEvent(eventName, "error")
		return IngestResult{}, err
	}

	if err := s.record(ctx, eventID, eventName, string(StatusSuccess)); err != nil {
		return IngestResult{}, err
	}

	s.countEvent(eventName, "success")
	return IngestResult{
		Status:    StatusSuccess,
		EventID:   eventID,
		EventName: eventName,
		Applied:   &applied,
	}, nil
}

func (s *Service) verifySignature(rawBody []byte, signature string) bool {
	signature = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if signature == "" || s.cfg.Secret == "" {
		return false
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
	mac.Write(rawBody)

	return hmac.Equal(provided, mac.Sum(nil))
}

func (s *Service) record(ctx context.Context, eventID, eventName, outcome string) error {
	inserted, err := s.idempotency.Insert(ctx, model.IdempotencyRecord{
		EventID:     eventID,
		EventType:   eventName,
		ProcessedAt: s.now().UTC(),
		Outcome:     outcome,
	})
	if err != nil {
		return fmt.Errorf("write idempotency record: %w", err)
	}
	if !inserted {
		// A concurrent delivery of the same event id won the race; the state
		// machine transitions are idempotent so both outcomes agree.
		s.logger.Debug("idempotency record already written", zap.String("event_id", eventID))
	}

	return nil
}

func (s *Service) countEvent(event, status string) {
	if s.events == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	s.events.WithLabelValues(event, status).Inc()
}
