package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ecojiaflow/ecolojia-backend/internal/config"
	"github.com/ecojiaflow/ecolojia-backend/internal/infra/metrics"
	"github.com/ecojiaflow/ecolojia-backend/internal/jobs/cleanup"
	pgrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/postgres"
	redrepo "github.com/ecojiaflow/ecolojia-backend/internal/repo/redis"
	entsvc "github.com/ecojiaflow/ecolojia-backend/internal/services/entitlements"
	locksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/lock"
	notifysvc "github.com/ecojiaflow/ecolojia-backend/internal/services/notify"
	quotasvc "github.com/ecojiaflow/ecolojia-backend/internal/services/quota"
	webhooksvc "github.com/ecojiaflow/ecolojia-backend/internal/services/webhooks"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	cleanupJob *cleanup.Job
	jobCancel  context.CancelFunc
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	lockRepo := redrepo.NewLockRepo(redisClient)
	entitlementRepo := pgrepo.NewEntitlementRepo(pool)
	quotaRepo := pgrepo.NewQuotaRepo(pool)
	idempotencyRepo := pgrepo.NewIdempotencyRepo(pool)
	usageEventRepo := pgrepo.NewUsageEventRepo(pool)

	m := metrics.New()

	lockService := locksvc.NewService(lockRepo, locksvc.Config{
		TTL:            cfg.Lock.TTL,
		AcquireTimeout: cfg.Lock.AcquireTimeout,
		RetryInterval:  cfg.Lock.RetryInterval,
	}, log)
	lockService.AttachFailOpenCounter(m.LockFailOpen)

	notifyService := notifysvc.NewService(nil, log)

	entitlementService := entsvc.NewService(entsvc.Dependencies{
		Pool:     pool,
		Store:    entitlementRepo,
		Quotas:   quotaRepo,
		Notifier: notifyService,
	}, log)

	quotaLedger := quotasvc.NewLedger(entitlementRepo, quotaRepo, lockService, cfg.Quotas, log)
	quotaLedger.AttachUsageEvents(usageEventRepo)
	quotaLedger.AttachMetrics(m.QuotaAdmissions, m.QuotaBusy)

	webhookService := webhooksvc.NewService(idempotencyRepo, entitlementService, webhooksvc.Config{
		Secret:       cfg.Billing.WebhookSecret,
		ReplayWindow: cfg.Billing.ReplayWindow,
	}, log)
	webhookService.AttachMetrics(m.WebhookEvents)

	cleanupJob := cleanup.New(idempotencyRepo, cfg.Billing.IdempotencyRetention, cfg.Billing.CleanupInterval, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		EntitlementService: entitlementService,
		QuotaLedger:        quotaLedger,
		WebhookService:     webhookService,
		Metrics:            m,
		Logger:             log,
		Config:             cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		cleanupJob: cleanupJob,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	jobCtx, cancel := context.WithCancel(context.Background())
	a.jobCancel = cancel
	go a.cleanupJob.Start(jobCtx)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if a.jobCancel != nil {
		a.jobCancel()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
