package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/handler"
	"github.com/noah-isme/sma-visit-api/internal/middleware"
	"github.com/noah-isme/sma-visit-api/internal/repository"
	"github.com/noah-isme/sma-visit-api/internal/service"
	"github.com/noah-isme/sma-visit-api/pkg/cache"
	"github.com/noah-isme/sma-visit-api/pkg/config"
	"github.com/noah-isme/sma-visit-api/pkg/database"
	"github.com/noah-isme/sma-visit-api/pkg/jobs"
	"github.com/noah-isme/sma-visit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-visit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-visit-api/pkg/middleware/requestid"
)

// App holds the wired visit tracker. Zero-value fields are features that are
// switched off by configuration.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB      *sqlx.DB
	Redis   *redis.Client
	Metrics *service.MetricsService
	Clock   *service.ZoneClock
	Cache   *service.CacheService

	Purposes  *service.PurposeService
	Registry  *service.RegistryService
	Lifecycle *service.LifecycleService
	GatePass  *service.GatePassService
	WalkIn    *service.WalkInService
	Stats     *service.StatsService
	Reports   *service.ReportService

	Queue     *jobs.Queue
	Scheduler *service.Scheduler

	cacheRepo *repository.CacheRepository
	cors      gin.HandlerFunc
}

// New connects storage and builds every service. The caller owns Close.
func New(cfg *config.Config, logr *zap.Logger) (*App, error) {
	if logr == nil {
		logr = zap.NewNop()
	}
	clock, err := service.LoadZoneClock(cfg.Tenant.Timezone)
	if err != nil {
		return nil, err
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	app := &App{Config: cfg, Logger: logr, DB: db, Clock: clock, Metrics: service.NewMetricsService()}
	app.cors, err = corsmiddleware.New(cfg.CORS.AllowedOrigins)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			// Reports are rebuilt from storage without a cache.
			logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
		} else {
			app.Redis = client
			app.cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	var cacheStore service.CacheRepository
	if app.cacheRepo != nil {
		cacheStore = app.cacheRepo
	}
	app.Cache = service.NewCacheService(cacheStore, app.Metrics, cfg.Cache.ReportTTL, logr, app.cacheRepo != nil)

	validate := validator.New()
	audit := repository.NewAuditRepository(db)
	visits := repository.NewVisitRepository(db)
	entities := repository.NewEntityRepository(db)

	app.Purposes = service.NewPurposeService(repository.NewPurposeRepository(db), cfg.Purposes, audit, validate, logr)
	app.Registry = service.NewRegistryService(entities, validate, logr)

	opts := []service.LifecycleOption{
		service.WithLifecycleAudit(audit),
		service.WithLifecycleCache(app.Cache),
		service.WithLifecycleMetrics(app.Metrics),
		service.WithLifecycleValidator(validate),
	}
	app.Lifecycle = service.NewLifecycleService(db, visits, app.Purposes, clock, logr, opts...)
	app.GatePass = service.NewGatePassService(app.Lifecycle, db, entities, visits, app.Purposes, clock,
		service.GatePassConfig{DailyThrottle: cfg.GatePass.DailyThrottle}, logr)
	walkIns := service.NewLifecycleService(db, repository.NewWalkInRepository(db), app.Purposes, clock, logr, opts...)
	app.WalkIn = service.NewWalkInService(walkIns)

	app.Stats = service.NewStatsService(db, clock, app.Metrics, logr,
		repository.NewHistoryActivityRepository(),
		repository.NewWalkInActivityRepository(),
	)
	app.Reports = service.NewReportService(repository.NewTenantRepository(db), app.Stats, app.Cache, nil, clock, app.Metrics, logr,
		service.ReportServiceConfig{CacheTTL: cfg.Cache.ReportTTL})

	if cfg.Reconcile.Enabled {
		app.Queue = jobs.NewQueue("daily-reports", app.Reports.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Reconcile.Workers,
			MaxRetries: cfg.Reconcile.Retries,
			RetryDelay: cfg.Reconcile.RetryDelay,
			Logger:     logr,
			OnFailure:  app.Reports.JobFailed,
		})
		app.Reports.AttachQueue(app.Queue)
		if err := app.Metrics.ObserveQueue("daily-reports", app.Queue.Pending); err != nil {
			logr.Warn("queue backlog gauge not registered", zap.Error(err))
		}

		app.Scheduler, err = service.NewScheduler(app.Reports, clock, cfg.Reconcile.Cron, cfg.Reconcile.RunTimeout, logr)
		if err != nil {
			_ = app.Close(context.Background())
			return nil, err
		}
	}

	return app, nil
}

// Start launches the report workers and the reconciliation schedule.
func (a *App) Start(ctx context.Context) {
	if a.Queue != nil {
		a.Queue.Start(ctx)
	}
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}
}

// Router builds the ops server.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	if a.cors != nil {
		r.Use(a.cors)
	}
	r.Use(middleware.Metrics(a.Metrics, "/metrics"))

	checks := []handler.ReadinessCheck{{Name: "postgres", Check: a.DB.PingContext}}
	if a.cacheRepo != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: a.cacheRepo.Ping})
	}
	handler.NewOpsHandler(a.Metrics, a.Reports, a.Clock, checks...).Register(r)
	return r
}

// Close stops background work and releases connections.
func (a *App) Close(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Stop(ctx)
	}
	if a.Queue != nil {
		a.Queue.Stop()
	}
	var errs []error
	if a.cacheRepo != nil {
		errs = append(errs, a.cacheRepo.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
