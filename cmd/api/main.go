package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/calendar"
	"fieldops_backend/internal/contacts"
	apphttp "fieldops_backend/internal/http"
	"fieldops_backend/internal/http/router"
	"fieldops_backend/internal/intake"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/notification"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/pricing"
	"fieldops_backend/internal/quotes"
	"fieldops_backend/internal/ratelimit"
	"fieldops_backend/internal/scheduler"
	"fieldops_backend/internal/scheduling"
	"fieldops_backend/migrations"
	"fieldops_backend/platform/config"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"
	"fieldops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	val := validator.New()
	tx := db.NewTransactor(pool)

	catalog, err := pricing.LoadCatalog(cfg.GetPricingCatalogPath())
	if err != nil {
		log.Error("failed to load pricing catalog", "error", err)
		panic("failed to load pricing catalog: " + err.Error())
	}

	limiter, closeLimiter := initIntakeLimiter(cfg, log)
	if closeLimiter != nil {
		defer closeLimiter()
	}

	jobs, closeJobs := initSchedulerClient(cfg, log)
	if closeJobs != nil {
		defer closeJobs()
	}

	// ========================================================================
	// Repositories
	// ========================================================================

	contactRepo := contacts.NewRepository()
	leadRepo := leads.NewRepository()
	appointmentRepo := appointments.NewRepository()
	quoteRepo := quotes.NewRepository()
	schedulingRepo := scheduling.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	// ========================================================================
	// Domain Services
	// ========================================================================

	loc := cfg.GetBusinessLocation()
	resolver := appointments.NewDefaultTimingResolver(loc)

	intakeSvc := intake.NewService(intake.Deps{
		Tx:           tx,
		Contacts:     contacts.NewDirectory(contactRepo, cfg.GetPhoneRegion()),
		Leads:        leadRepo,
		Appointments: appointmentRepo,
		Events:       outboxRepo,
		Stages:       contactRepo,
		Limiter:      limiter,
		Resolver:     resolver,
		Hooks:        jobs,
		Validator:    val,
		Log:          log,
	})

	appointmentSvc := appointments.NewService(appointments.Deps{
		DB:        pool,
		Tx:        tx,
		Store:     appointmentRepo,
		Events:    outboxRepo,
		Leads:     leadRepo,
		Stages:    contactRepo,
		Resolver:  resolver,
		Reminders: jobs,
		Calendar:  jobs,
		Log:       log,
	})

	quoteSvc := quotes.NewService(quotes.Deps{
		DB:           pool,
		Tx:           tx,
		Store:        quoteRepo,
		Engine:       pricing.NewEngine(catalog),
		Properties:   contactRepo,
		Appointments: appointmentRepo,
		Events:       outboxRepo,
		Leads:        leadRepo,
		Stages:       contactRepo,
		Hooks:        jobs,
		Log:          log,
	})

	schedulingDeps := scheduling.Deps{
		DB:            pool,
		Quotes:        quoteRepo,
		Properties:    contactRepo,
		Calendar:      schedulingRepo,
		Catalog:       catalog,
		RankerTimeout: cfg.GetRankerTimeout(),
		Location:      loc,
		Log:           log,
	}
	if cfg.IsRankerEnabled() {
		ranker, err := scheduling.NewGeminiRanker(ctx, cfg)
		if err != nil {
			log.Warn("scheduling ranker disabled", "error", err)
		} else {
			schedulingDeps.Ranker = ranker
		}
	}
	schedulingEngine := scheduling.NewEngine(schedulingDeps)

	registry := outbox.NewRegistry()
	notification.NewHandlers(notification.Deps{
		DB:           pool,
		Appointments: appointmentRepo,
		Contacts:     contactRepo,
		Leads:        leadRepo,
		Quotes:       quoteRepo,
		Notifier:     newNotifier(cfg, log),
		Calendar:     calendar.NewClient(cfg, log),
		BaseURL:      cfg.GetAppBaseURL(),
		Log:          log,
	}).Register(registry)
	dispatcher := outbox.NewDispatcher(outboxRepo, registry, log, cfg.GetOutboxLease())

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:    cfg,
		Logger:    log,
		Validator: val,
		Health:    pool,
		Modules: []apphttp.Module{
			intake.NewModule(intakeSvc),
			appointments.NewModule(appointmentSvc, val),
			quotes.NewModule(quoteSvc, val),
			scheduling.NewModule(schedulingEngine),
			outbox.NewModule(dispatcher),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initIntakeLimiter picks the submission limiter backend. A Redis limiter
// that cannot be configured degrades to the in-memory one.
func initIntakeLimiter(cfg *config.Config, log *logger.Logger) (ratelimit.Limiter, func()) {
	limit := cfg.GetIntakeRateLimitMax()
	window := cfg.GetIntakeRateLimitWindow()
	memory := func() ratelimit.Limiter {
		return ratelimit.NewMemoryLimiter(limit, window, cfg.GetIntakeRateLimitMaxKeys())
	}

	if cfg.GetIntakeRateLimitBackend() != "redis" {
		return memory(), nil
	}
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; intake rate limit falls back to memory")
		return memory(), nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL; intake rate limit falls back to memory", "error", err)
		return memory(), nil
	}
	client := redis.NewClient(opt)
	return ratelimit.NewRedisLimiter(client, limit, window), func() {
		_ = client.Close()
	}
}

// initSchedulerClient returns nil when Redis is unavailable. A nil client
// drops every enqueue.
func initSchedulerClient(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; background jobs disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func newNotifier(cfg *config.Config, log *logger.Logger) notification.Notifier {
	if !cfg.IsEmailEnabled() {
		log.Warn("SMTP_HOST not configured; notifications are logged only")
		return notification.NewLogNotifier(log)
	}
	return notification.NewSMTPNotifier(cfg, cfg.GetBusinessLocation())
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
