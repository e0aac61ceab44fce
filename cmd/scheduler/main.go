package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/calendar"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/notification"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/quotes"
	"fieldops_backend/internal/scheduler"
	"fieldops_backend/internal/tracking"
	"fieldops_backend/platform/config"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	contactRepo := contacts.NewRepository()
	leadRepo := leads.NewRepository()
	appointmentRepo := appointments.NewRepository()
	outboxRepo := outbox.NewRepository(pool)
	calendarClient := calendar.NewClient(cfg, log)

	var notifier notification.Notifier = notification.NewLogNotifier(log)
	if cfg.IsEmailEnabled() {
		notifier = notification.NewSMTPNotifier(cfg, cfg.GetBusinessLocation())
	} else {
		log.Warn("SMTP_HOST not configured; notifications are logged only")
	}

	notifications := notification.NewHandlers(notification.Deps{
		DB:           pool,
		Appointments: appointmentRepo,
		Contacts:     contactRepo,
		Leads:        leadRepo,
		Quotes:       quotes.NewRepository(),
		Notifier:     notifier,
		Calendar:     calendarClient,
		BaseURL:      cfg.GetAppBaseURL(),
		Log:          log,
	})
	registry := outbox.NewRegistry()
	notifications.Register(registry)
	dispatcher := outbox.NewDispatcher(outboxRepo, registry, log, cfg.GetOutboxLease())

	// Only AttachCalendarEvent is used by the worker.
	appointmentSvc := appointments.NewService(appointments.Deps{
		DB:     pool,
		Tx:     db.NewTransactor(pool),
		Store:  appointmentRepo,
		Events: outboxRepo,
		Leads:  leadRepo,
		Stages: contactRepo,
		Log:    log,
	})

	handlers := scheduler.NewTaskHandlers(scheduler.WorkerDeps{
		DB:           pool,
		Appointments: appointmentRepo,
		Contacts:     contactRepo,
		Calendar:     calendarClient,
		Attacher:     appointmentSvc,
		Tracking:     tracking.NewClient(cfg),
		Reminders:    notifications,
		Log:          log,
	})

	worker, err := scheduler.NewWorker(cfg, handlers, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	poller := scheduler.NewOutboxPoller(dispatcher, cfg.GetOutboxPollInterval(), cfg.GetOutboxBatchSize(), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler stopped", "error", err)
		panic("scheduler stopped: " + err.Error())
	}
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
