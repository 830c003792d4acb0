package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecojiaflow/ecolojia-backend/internal/domain/enums"
	"github.com/ecojiaflow/ecolojia-backend/internal/domain/model"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
billing:
  webhook_secret: s3cr3t
  replay_window: 10m
lock:
  ttl: 3s
quotas:
  free:
    scan:
      limit: 50
      period: monthly
    ai_question:
      limit: 2
      period: daily
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Billing.WebhookSecret != "s3cr3t" {
		t.Fatalf("unexpected webhook secret: %s", cfg.Billing.WebhookSecret)
	}
	if cfg.Billing.ReplayWindow != 10*time.Minute {
		t.Fatalf("unexpected replay window: %s", cfg.Billing.ReplayWindow)
	}
	if cfg.Lock.TTL != 3*time.Second {
		t.Fatalf("unexpected lock ttl: %s", cfg.Lock.TTL)
	}
	if cfg.Quotas.Free.Scan.Limit != 50 {
		t.Fatalf("unexpected free scan limit: %d", cfg.Quotas.Free.Scan.Limit)
	}
	if cfg.Quotas.Free.AIQuestion.Limit != 2 {
		t.Fatalf("unexpected free ai_question limit: %d", cfg.Quotas.Free.AIQuestion.Limit)
	}

	if cfg.Billing.IdempotencyRetention != 30*24*time.Hour {
		t.Fatalf("idempotency retention default should stay 720h, got %s", cfg.Billing.IdempotencyRetention)
	}
	if cfg.Quotas.Free.Export.Limit != 3 {
		t.Fatalf("free export default should stay 3, got %d", cfg.Quotas.Free.Export.Limit)
	}
	if cfg.Quotas.Premium.Scan.Limit != model.UnlimitedLimit {
		t.Fatalf("premium scan default should stay unlimited, got %d", cfg.Quotas.Premium.Scan.Limit)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Quotas.Free.Scan.Limit != 30 {
		t.Fatalf("unexpected default free scan limit: %d", cfg.Quotas.Free.Scan.Limit)
	}
	if cfg.Quotas.Free.AIQuestion.Limit != 0 || cfg.Quotas.Free.AIQuestion.Period != enums.PeriodDaily {
		t.Fatalf("unexpected default free ai_question limit: %+v", cfg.Quotas.Free.AIQuestion)
	}
	if cfg.Lock.TTL != 5*time.Second || cfg.Lock.AcquireTimeout != 2*time.Second {
		t.Fatalf("unexpected lock defaults: %+v", cfg.Lock)
	}
	if cfg.Billing.ReplayWindow != 5*time.Minute {
		t.Fatalf("unexpected default replay window: %s", cfg.Billing.ReplayWindow)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("BILLING_WEBHOOK_SECRET", "env-secret")
	t.Setenv("LOCK_ACQUIRE_TIMEOUT", "750ms")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Billing.WebhookSecret != "env-secret" {
		t.Fatalf("env webhook secret not applied: %s", cfg.Billing.WebhookSecret)
	}
	if cfg.Lock.AcquireTimeout != 750*time.Millisecond {
		t.Fatalf("env lock acquire timeout not applied: %s", cfg.Lock.AcquireTimeout)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("env redis addr not applied: %s", cfg.Redis.Addr)
	}
}

func TestResolveLimitTable(t *testing.T) {
	cfg := Default()

	free := cfg.Quotas.Resolve(enums.TierFree, enums.ResourceScan)
	if free.Limit != 30 || free.Period != enums.PeriodMonthly {
		t.Fatalf("unexpected free/scan limit: %+v", free)
	}

	premium := cfg.Quotas.Resolve(enums.TierPremium, enums.ResourceAIQuestion)
	if premium.Limit != model.UnlimitedLimit {
		t.Fatalf("unexpected premium/ai_question limit: %+v", premium)
	}

	unknown := cfg.Quotas.Resolve(enums.TierFree, enums.ResourceType("bogus"))
	if unknown.Limit != 0 {
		t.Fatalf("unknown resource should resolve to zero limit, got %+v", unknown)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"APP_ENV",
		"HTTP_ADDR", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"BILLING_WEBHOOK_SECRET", "BILLING_REPLAY_WINDOW", "BILLING_IDEMPOTENCY_RETENTION", "BILLING_CLEANUP_INTERVAL",
		"LOCK_TTL", "LOCK_ACQUIRE_TIMEOUT", "LOCK_RETRY_INTERVAL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
