package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ecojiaflow/ecolojia-backend/internal/config"
	"github.com/ecojiaflow/ecolojia-backend/internal/infra/metrics"
	entsvc "github.com/ecojiaflow/ecolojia-backend/internal/services/entitlements"
	quotasvc "github.com/ecojiaflow/ecolojia-backend/internal/services/quota"
	webhooksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/webhooks"
	"github.com/ecojiaflow/ecolojia-backend/internal/transport/http/handlers"
)

type Dependencies struct {
	EntitlementService *entsvc.Service
	QuotaLedger        *quotasvc.Ledger
	WebhookService     *webhooksvc.Service
	Metrics            *metrics.Metrics
	Logger             *zap.Logger
	Config             config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	webhookHandler := handlers.NewWebhookHandler(deps.WebhookService, deps.Config.HTTP.WebhookBodyMax)
	quotaHandler := handlers.NewQuotaHandler(deps.QuotaLedger)
	entitlementsHandler := handlers.NewEntitlementsHandler(deps.EntitlementService)
	meteredHandler := handlers.NewMeteredHandler(deps.QuotaLedger)

	identityMW := IdentityMiddleware(deps.Logger)
	webhookMW := WebhookThrottle(deps.Config.HTTP.WebhookRPS, deps.Config.HTTP.WebhookBurst)

	r.Get("/healthz", healthHandler.Get)
	if deps.Metrics != nil {
		r.Method("GET", "/metrics", deps.Metrics.Handler())
	}

	r.With(webhookMW).Post("/billing/webhook", webhookHandler.Handle)

	r.With(identityMW).Get("/quota", quotaHandler.Handle)
	r.With(identityMW).Get("/entitlements", entitlementsHandler.Handle)
	r.With(identityMW).Post("/scan", meteredHandler.Scan)
	r.With(identityMW).Post("/ai/question", meteredHandler.AIQuestion)
	r.With(identityMW).Post("/export", meteredHandler.Export)
}
