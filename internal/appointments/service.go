package appointments

import (
	"context"
	"errors"
	"time"

	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"

	"github.com/google/uuid"
)

// ReminderLead is how long before the visit the reminder fires.
const ReminderLead = 24 * time.Hour

// Store is the appointment persistence the service needs.
type Store interface {
	Insert(ctx context.Context, q db.DBTX, a Appointment) error
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (Appointment, error)
	GetByToken(ctx context.Context, q db.DBTX, token string, forUpdate bool) (Appointment, error)
	UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, status, notes string) error
	UpdateTiming(ctx context.Context, q db.DBTX, id uuid.UUID, startAt *time.Time, durationMinutes int, status string) error
	Cancel(ctx context.Context, q db.DBTX, id uuid.UUID, notes string) error
	DetachQuotes(ctx context.Context, q db.DBTX, id uuid.UUID) (int64, error)
	SetCalendarEvent(ctx context.Context, q db.DBTX, id uuid.UUID, externalID string) (bool, error)
}

// EventWriter appends outbox events inside a transaction.
type EventWriter interface {
	Insert(ctx context.Context, q db.DBTX, eventType string, payload any) (uuid.UUID, error)
}

// LeadStatusWriter refreshes the lead projection.
type LeadStatusWriter interface {
	UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, status string) error
}

// StageWriter upserts the contact's CRM stage.
type StageWriter interface {
	UpsertStage(ctx context.Context, q db.DBTX, contactID uuid.UUID, stage string) error
}

// ReminderScheduler queues a reminder to run at runAt.
type ReminderScheduler interface {
	ScheduleAppointmentReminder(ctx context.Context, appointmentID uuid.UUID, runAt time.Time) error
}

// CalendarSyncer queues creation of the provider calendar event.
type CalendarSyncer interface {
	EnqueueCalendarSync(ctx context.Context, appointmentID uuid.UUID) error
}

// Service implements the appointment lifecycle.
type Service struct {
	db        db.DBTX
	tx        db.Transactor
	store     Store
	events    EventWriter
	leads     LeadStatusWriter
	stages    StageWriter
	resolver  TimingResolver
	reminders ReminderScheduler
	calendar  CalendarSyncer
	log       *logger.Logger
	now       func() time.Time
}

// Deps groups the Service collaborators.
type Deps struct {
	DB        db.DBTX
	Tx        db.Transactor
	Store     Store
	Events    EventWriter
	Leads     LeadStatusWriter
	Stages    StageWriter
	Resolver  TimingResolver
	Reminders ReminderScheduler
	Calendar  CalendarSyncer
	Log       *logger.Logger
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	return &Service{
		db:        d.DB,
		tx:        d.Tx,
		store:     d.Store,
		events:    d.Events,
		leads:     d.Leads,
		stages:    d.Stages,
		resolver:  d.Resolver,
		reminders: d.Reminders,
		calendar:  d.Calendar,
		log:       d.Log,
		now:       time.Now,
	}
}

// GetByToken returns the appointment behind a customer reschedule link.
func (s *Service) GetByToken(ctx context.Context, token string) (Appointment, error) {
	if token == "" {
		return Appointment{}, apperr.NotFound("appointment not found")
	}
	a, err := s.store.GetByToken(ctx, s.db, token, false)
	if err != nil {
		return Appointment{}, s.translate("appointments.GetByToken", err)
	}
	return a, nil
}

// TransitionStatus moves an appointment along the state machine. Canceling
// clears the calendar reference and detaches quotes pointing at it.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, to, notes string) (Appointment, error) {
	const op = "appointments.TransitionStatus"

	var updated Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		current, err := s.store.GetByID(ctx, q, id, true)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, to) {
			return apperr.Conflict("cannot move appointment from " + current.Status + " to " + to).
				WithReason(apperr.ReasonInvalidTransition)
		}

		switch to {
		case StatusCanceled:
			if err := s.store.Cancel(ctx, q, id, notes); err != nil {
				return err
			}
			if _, err := s.store.DetachQuotes(ctx, q, id); err != nil {
				return err
			}
			payload := outbox.AppointmentCanceledPayload{AppointmentID: id}
			if current.CalendarEventID != nil {
				payload.CalendarEventID = *current.CalendarEventID
			}
			if _, err := s.events.Insert(ctx, q, outbox.TypeAppointmentCanceled, payload); err != nil {
				return err
			}
			current.CalendarEventID = nil
		case StatusConfirmed:
			if err := s.store.UpdateStatus(ctx, q, id, to, notes); err != nil {
				return err
			}
			if _, err := s.events.Insert(ctx, q, outbox.TypeAppointmentConfirmed, outbox.AppointmentConfirmedPayload{
				AppointmentID:   id,
				RescheduleToken: current.RescheduleToken,
			}); err != nil {
				return err
			}
		default:
			if err := s.store.UpdateStatus(ctx, q, id, to, notes); err != nil {
				return err
			}
		}

		current.Status = to
		if notes != "" {
			current.Notes = notes
		}
		updated = current
		return nil
	})
	if err != nil {
		return Appointment{}, s.translate(op, err)
	}

	s.refreshProjections(ctx, updated)
	if to == StatusConfirmed {
		s.scheduleReminder(ctx, updated)
	}
	return updated, nil
}

// RescheduleRequest is a customer's new preferred timing.
type RescheduleRequest struct {
	PreferredDate string `json:"preferredDate" validate:"required,datetime=2006-01-02"`
	Window        string `json:"window" validate:"omitempty,oneof=morning midday afternoon evening anytime"`
}

// Reschedule changes timing through the customer's reschedule token. A
// no-show goes back to requested; completed and canceled visits are final.
// The calendar reference is cleared with the new timing: the outbox event
// carries the old provider id for deletion and a fresh sync is queued once
// the change commits.
func (s *Service) Reschedule(ctx context.Context, token string, req RescheduleRequest) (Appointment, error) {
	const op = "appointments.Reschedule"

	timing, err := s.resolver.ResolveTiming(req.PreferredDate, req.Window)
	if err != nil {
		return Appointment{}, err
	}

	var updated Appointment
	statusChanged := false
	err = s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		current, err := s.store.GetByToken(ctx, q, token, true)
		if err != nil {
			return err
		}
		if IsTerminal(current.Status) {
			return apperr.Conflict("appointment can no longer be rescheduled").
				WithReason(apperr.ReasonInvalidTransition)
		}

		status := current.Status
		if status == StatusNoShow {
			status = StatusRequested
			statusChanged = true
		}

		duration := current.DurationMinutes
		if current.Type == TypeEstimate && timing.DurationMinutes > 0 {
			duration = timing.DurationMinutes
		}

		if err := s.store.UpdateTiming(ctx, q, current.ID, timing.StartAt, duration, status); err != nil {
			return err
		}
		payload := outbox.EstimateRescheduledPayload{
			AppointmentID:   current.ID,
			RescheduleToken: current.RescheduleToken,
			PreviousStartAt: current.StartAt,
			StartAt:         timing.StartAt,
			Window:          req.Window,
		}
		if current.CalendarEventID != nil {
			payload.PreviousCalendarEventID = *current.CalendarEventID
		}
		if _, err := s.events.Insert(ctx, q, outbox.TypeEstimateRescheduled, payload); err != nil {
			return err
		}

		current.CalendarEventID = nil
		current.StartAt = timing.StartAt
		current.DurationMinutes = duration
		current.Status = status
		updated = current
		return nil
	})
	if err != nil {
		return Appointment{}, s.translate(op, err)
	}

	if statusChanged {
		s.refreshProjections(ctx, updated)
	}
	if updated.Status == StatusConfirmed {
		s.scheduleReminder(ctx, updated)
	}
	s.syncCalendar(ctx, updated)
	return updated, nil
}

// AttachCalendarEvent stores the external calendar id in its own small
// transaction once creation has succeeded.
func (s *Service) AttachCalendarEvent(ctx context.Context, id uuid.UUID, externalID string) error {
	if externalID == "" {
		return nil
	}
	return s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		attached, err := s.store.SetCalendarEvent(ctx, q, id, externalID)
		if err != nil {
			return err
		}
		if !attached {
			s.log.Info("calendar event not attached", "appointment_id", id, "external_id", externalID)
		}
		return nil
	})
}

// refreshProjections updates the CRM stage and the lead status. Both are
// derived views, so failures are logged and swallowed.
func (s *Service) refreshProjections(ctx context.Context, a Appointment) {
	stage := stageFor(a)
	leadStatus := leadStatusFor(a)

	err := s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		if stage != "" {
			if err := s.stages.UpsertStage(ctx, q, a.ContactID, stage); err != nil {
				return err
			}
		}
		if a.LeadID != nil && leadStatus != "" {
			if err := s.leads.UpdateStatus(ctx, q, *a.LeadID, leadStatus); err != nil && !errors.Is(err, leads.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.HookFailed("appointments.projections", a.ID.String(), err)
	}
}

func (s *Service) syncCalendar(ctx context.Context, a Appointment) {
	if s.calendar == nil || a.StartAt == nil {
		return
	}
	if err := s.calendar.EnqueueCalendarSync(ctx, a.ID); err != nil {
		s.log.HookFailed("appointments.calendar", a.ID.String(), err)
	}
}

func (s *Service) scheduleReminder(ctx context.Context, a Appointment) {
	if s.reminders == nil || a.StartAt == nil {
		return
	}
	runAt := a.StartAt.Add(-ReminderLead)
	if !runAt.After(s.now()) {
		return
	}
	if err := s.reminders.ScheduleAppointmentReminder(ctx, a.ID, runAt); err != nil {
		s.log.HookFailed("appointments.reminder", a.ID.String(), err)
	}
}

func stageFor(a Appointment) string {
	switch a.Status {
	case StatusRequested, StatusConfirmed:
		if a.Type == TypeJob {
			return contacts.StageJobScheduled
		}
		return contacts.StageEstimateBooked
	case StatusCompleted:
		if a.Type == TypeJob {
			return contacts.StageJobDone
		}
		return contacts.StageEstimateDone
	case StatusNoShow:
		return contacts.StageNoShow
	case StatusCanceled:
		return contacts.StageCanceled
	}
	return ""
}

func leadStatusFor(a Appointment) string {
	switch a.Status {
	case StatusRequested, StatusConfirmed:
		return leads.StatusScheduled
	case StatusCanceled, StatusNoShow:
		return leads.StatusContacted
	case StatusCompleted:
		if a.Type == TypeEstimate {
			return leads.StatusContacted
		}
	}
	return ""
}

func (s *Service) translate(op string, err error) error {
	var domainErr *apperr.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("appointment not found").WithOp(op)
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, "appointment changed concurrently", err).WithReason(apperr.ReasonDuplicate).WithOp(op)
	default:
		s.log.DatabaseError(op, err)
		return apperr.Wrap(apperr.KindInternal, "appointment update failed", err).WithOp(op)
	}
}
