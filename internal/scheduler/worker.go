package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/calendar"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/tracking"
	"fieldops_backend/platform/config"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type AppointmentReader interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (appointments.Appointment, error)
}

type ContactReader interface {
	GetContact(ctx context.Context, q db.DBTX, id uuid.UUID) (contacts.Contact, error)
	GetProperty(ctx context.Context, q db.DBTX, id uuid.UUID) (contacts.Property, error)
}

type CalendarCreator interface {
	CreateEvent(ctx context.Context, e calendar.Event) (string, error)
}

type CalendarAttacher interface {
	AttachCalendarEvent(ctx context.Context, id uuid.UUID, externalID string) error
}

type ConversionPinger interface {
	Ping(ctx context.Context, conv tracking.Conversion) error
}

type ReminderSender interface {
	SendReminder(ctx context.Context, appointmentID uuid.UUID, scheduledFor time.Time) (outbox.Outcome, error)
}

// WorkerDeps groups what the task handlers need.
type WorkerDeps struct {
	DB           db.DBTX
	Appointments AppointmentReader
	Contacts     ContactReader
	Calendar     CalendarCreator
	Attacher     CalendarAttacher
	Tracking     ConversionPinger
	Reminders    ReminderSender
	Log          *logger.Logger
}

// TaskHandlers runs the background tasks.
type TaskHandlers struct {
	db           db.DBTX
	appointments AppointmentReader
	contacts     ContactReader
	calendar     CalendarCreator
	attacher     CalendarAttacher
	tracking     ConversionPinger
	reminders    ReminderSender
	log          *logger.Logger
}

func NewTaskHandlers(d WorkerDeps) *TaskHandlers {
	return &TaskHandlers{
		db:           d.DB,
		appointments: d.Appointments,
		contacts:     d.Contacts,
		calendar:     d.Calendar,
		attacher:     d.Attacher,
		tracking:     d.Tracking,
		reminders:    d.Reminders,
		log:          d.Log,
	}
}

// Register binds every task type on mux.
func (h *TaskHandlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskCalendarSync, h.HandleCalendarSync)
	mux.HandleFunc(TaskConversionPing, h.HandleConversionPing)
	mux.HandleFunc(TaskAppointmentReminder, h.HandleAppointmentReminder)
}

// HandleCalendarSync creates the provider event and stores its id. Visits
// that are gone, unscheduled, closed or already synced are skipped.
func (h *TaskHandlers) HandleCalendarSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCalendarSyncPayload(task)
	if err != nil {
		return skipRetry(err)
	}
	id, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return skipRetry(err)
	}

	appt, err := h.appointments.GetByID(ctx, h.db, id, false)
	if errors.Is(err, appointments.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if appt.StartAt == nil || appointments.IsTerminal(appt.Status) || appt.CalendarEventID != nil {
		return nil
	}

	contact, err := h.contacts.GetContact(ctx, h.db, appt.ContactID)
	if err != nil {
		return err
	}
	property, err := h.contacts.GetProperty(ctx, h.db, appt.PropertyID)
	if err != nil {
		return err
	}

	externalID, err := h.calendar.CreateEvent(ctx, calendarEvent(appt, contact, property))
	if err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	if externalID == "" {
		return nil
	}
	return h.attacher.AttachCalendarEvent(ctx, appt.ID, externalID)
}

func (h *TaskHandlers) HandleConversionPing(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseConversionPingPayload(task)
	if err != nil {
		return skipRetry(err)
	}
	return h.tracking.Ping(ctx, payload.Conversion)
}

func (h *TaskHandlers) HandleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAppointmentReminderPayload(task)
	if err != nil {
		return skipRetry(err)
	}
	id, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return skipRetry(err)
	}

	outcome, err := h.reminders.SendReminder(ctx, id, payload.ScheduledFor)
	if err != nil {
		return err
	}
	if outcome == outbox.OutcomeSkipped {
		h.log.Info("appointment reminder skipped", "appointment_id", id)
	}
	return nil
}

func calendarEvent(a appointments.Appointment, c contacts.Contact, p contacts.Property) calendar.Event {
	kind := "Estimate"
	if a.Type == appointments.TypeJob {
		kind = "Job"
	}

	var desc []string
	if c.PhoneE164 != nil {
		desc = append(desc, "Phone: "+*c.PhoneE164)
	}
	if c.Email != nil {
		desc = append(desc, "Email: "+*c.Email)
	}
	if p.Gated {
		desc = append(desc, "Gated property")
	}
	if a.Notes != "" {
		desc = append(desc, a.Notes)
	}

	return calendar.Event{
		Title:       kind + ": " + c.FullName(),
		Description: strings.Join(desc, "\n"),
		Location:    p.OneLine(),
		StartAt:     *a.StartAt,
		EndAt:       *a.EndAt(),
		Reference:   a.ID.String(),
	}
}

func skipRetry(err error) error {
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

// Worker serves the asynq queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, handlers *TaskHandlers, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	return &Worker{server: server, mux: mux, log: log}, nil
}

// Run processes tasks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
