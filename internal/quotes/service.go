package quotes

import (
	"context"
	"errors"
	"strings"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/pricing"
	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"
	"fieldops_backend/platform/token"

	"github.com/google/uuid"
)

// Store is the quote persistence the service needs.
type Store interface {
	Insert(ctx context.Context, q db.DBTX, quote Quote) error
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (Quote, error)
	GetByShareToken(ctx context.Context, q db.DBTX, token string, forUpdate bool) (Quote, error)
	MarkSent(ctx context.Context, q db.DBTX, id uuid.UUID, sentAt time.Time) error
	RecordDecision(ctx context.Context, q db.DBTX, id uuid.UUID, status string, at time.Time, notes *string) (bool, error)
	SetJobAppointment(ctx context.Context, q db.DBTX, id, appointmentID uuid.UUID) error
}

// PropertyReader confirms the priced property exists.
type PropertyReader interface {
	GetProperty(ctx context.Context, q db.DBTX, id uuid.UUID) (contacts.Property, error)
}

// AppointmentWriter inserts the job appointment.
type AppointmentWriter interface {
	Insert(ctx context.Context, q db.DBTX, a appointments.Appointment) error
}

// EventWriter appends outbox events inside a transaction.
type EventWriter interface {
	Insert(ctx context.Context, q db.DBTX, eventType string, payload any) (uuid.UUID, error)
}

// LeadStatusWriter advances the lead.
type LeadStatusWriter interface {
	UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, status string) error
}

// StageWriter upserts the contact's CRM stage.
type StageWriter interface {
	UpsertStage(ctx context.Context, q db.DBTX, contactID uuid.UUID, stage string) error
}

// JobHooks run after a job is committed. Failures are logged only.
type JobHooks interface {
	EnqueueCalendarSync(ctx context.Context, appointmentID uuid.UUID) error
	ScheduleAppointmentReminder(ctx context.Context, appointmentID uuid.UUID, runAt time.Time) error
}

// Deps groups the Service collaborators.
type Deps struct {
	DB           db.DBTX
	Tx           db.Transactor
	Store        Store
	Engine       *pricing.Engine
	Properties   PropertyReader
	Appointments AppointmentWriter
	Events       EventWriter
	Leads        LeadStatusWriter
	Stages       StageWriter
	Hooks        JobHooks
	Tokens       token.Generator
	Log          *logger.Logger
}

// Service implements the quote lifecycle.
type Service struct {
	db           db.DBTX
	tx           db.Transactor
	store        Store
	engine       *pricing.Engine
	properties   PropertyReader
	appointments AppointmentWriter
	events       EventWriter
	leads        LeadStatusWriter
	stages       StageWriter
	hooks        JobHooks
	tokens       token.Generator
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	tokens := d.Tokens
	if tokens == nil {
		tokens = token.Default
	}
	return &Service{
		db:           d.DB,
		tx:           d.Tx,
		store:        d.Store,
		engine:       d.Engine,
		properties:   d.Properties,
		appointments: d.Appointments,
		events:       d.Events,
		leads:        d.Leads,
		stages:       d.Stages,
		hooks:        d.Hooks,
		tokens:       tokens,
		log:          d.Log,
		now:          time.Now,
	}
}

// Preview prices input without storing anything.
func (s *Service) Preview(in pricing.Input) (pricing.Breakdown, error) {
	return s.engine.CalculateBreakdown(in)
}

// CreateQuoteRequest is the input for CreateQuote.
type CreateQuoteRequest struct {
	ContactID     uuid.UUID     `json:"contactId" validate:"required"`
	PropertyID    uuid.UUID     `json:"propertyId" validate:"required"`
	LeadID        *uuid.UUID    `json:"leadId"`
	Pricing       pricing.Input `json:"pricing"`
	ExpiresInDays int           `json:"expiresInDays" validate:"gte=0,lte=365"`
}

// CreateQuote prices the request and stores it with a fresh share token.
// Pricing failures are rejected before anything is written.
func (s *Service) CreateQuote(ctx context.Context, req CreateQuoteRequest) (Quote, error) {
	const op = "quotes.CreateQuote"

	breakdown, err := s.engine.CalculateBreakdown(req.Pricing)
	if err != nil {
		return Quote{}, err
	}
	shareToken, err := s.tokens()
	if err != nil {
		return Quote{}, apperr.Wrap(apperr.KindInternal, "could not generate share token", err).WithOp(op)
	}

	now := s.now()
	quote := Quote{
		ID:         uuid.New(),
		ContactID:  req.ContactID,
		PropertyID: req.PropertyID,
		LeadID:     req.LeadID,
		Status:     StatusPending,
		Services:   serviceIDs(breakdown.LineItems, pricing.CategoryService, "service:"),
		AddOns:     serviceIDs(breakdown.LineItems, pricing.CategoryAddOn, "addon:"),
		ShareToken: shareToken,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	quote.applyBreakdown(breakdown)
	if req.ExpiresInDays > 0 {
		expires := now.AddDate(0, 0, req.ExpiresInDays)
		quote.ExpiresAt = &expires
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		property, err := s.properties.GetProperty(ctx, q, req.PropertyID)
		if err != nil {
			if errors.Is(err, contacts.ErrNotFound) {
				return apperr.NotFound("property not found")
			}
			return err
		}
		if property.ContactID != req.ContactID {
			return apperr.Validation("property does not belong to contact")
		}

		if err := s.store.Insert(ctx, q, quote); err != nil {
			return err
		}
		if req.LeadID != nil {
			if err := s.leads.UpdateStatus(ctx, q, *req.LeadID, leads.StatusQuoted); err != nil {
				if errors.Is(err, leads.ErrNotFound) {
					return apperr.NotFound("lead not found")
				}
				return err
			}
		}
		_, err = s.events.Insert(ctx, q, outbox.TypeQuoteCreated, outbox.QuoteCreatedPayload{
			QuoteID:    quote.ID,
			ContactID:  quote.ContactID,
			LeadID:     quote.LeadID,
			TotalCents: quote.TotalCents,
		})
		return err
	})
	if err != nil {
		return Quote{}, s.translate(op, err)
	}

	s.upsertStage(ctx, quote.ContactID, contacts.StageQuoted, quote.ID)
	return quote, nil
}

// SendQuote marks the quote sent and queues the customer link. Re-sending a
// sent quote refreshes sent_at.
func (s *Service) SendQuote(ctx context.Context, id uuid.UUID) (Quote, error) {
	const op = "quotes.SendQuote"

	var updated Quote
	err := s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		quote, err := s.store.GetByID(ctx, q, id, true)
		if err != nil {
			return err
		}
		if quote.Status != StatusPending && quote.Status != StatusSent {
			return apperr.Conflict("quote has already been decided").WithReason(apperr.ReasonAlreadyDecided)
		}
		sentAt := s.now()
		if err := s.store.MarkSent(ctx, q, id, sentAt); err != nil {
			return err
		}
		if _, err := s.events.Insert(ctx, q, outbox.TypeQuoteSent, outbox.QuoteSentPayload{
			QuoteID:    id,
			ShareToken: quote.ShareToken,
		}); err != nil {
			return err
		}
		quote.Status = StatusSent
		quote.SentAt = &sentAt
		updated = quote
		return nil
	})
	if err != nil {
		return Quote{}, s.translate(op, err)
	}
	return updated, nil
}

// DecisionRequest accepts or declines a quote.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accepted declined"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// GetByID returns a quote for staff.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Quote, error) {
	quote, err := s.store.GetByID(ctx, s.db, id, false)
	if err != nil {
		return Quote{}, s.translate("quotes.GetByID", err)
	}
	return quote, nil
}

// GetByShareToken returns the quote behind a customer link.
func (s *Service) GetByShareToken(ctx context.Context, shareToken string) (Quote, error) {
	if shareToken == "" {
		return Quote{}, apperr.NotFound("quote not found")
	}
	quote, err := s.store.GetByShareToken(ctx, s.db, shareToken, false)
	if err != nil {
		return Quote{}, s.translate("quotes.GetByShareToken", err)
	}
	if quote.Expired(s.now()) {
		return Quote{}, apperr.Gone("quote link has expired")
	}
	return quote, nil
}

// DecideByShareToken records a customer decision. Expired links are Gone.
func (s *Service) DecideByShareToken(ctx context.Context, shareToken string, req DecisionRequest) (Quote, error) {
	return s.decide(ctx, func(ctx context.Context, q db.DBTX) (Quote, error) {
		return s.store.GetByShareToken(ctx, q, shareToken, true)
	}, req, ActorCustomer)
}

// DecideByID records a staff decision on the customer's behalf.
func (s *Service) DecideByID(ctx context.Context, id uuid.UUID, req DecisionRequest) (Quote, error) {
	return s.decide(ctx, func(ctx context.Context, q db.DBTX) (Quote, error) {
		return s.store.GetByID(ctx, q, id, true)
	}, req, ActorStaff)
}

func (s *Service) decide(ctx context.Context, load func(context.Context, db.DBTX) (Quote, error), req DecisionRequest, actor string) (Quote, error) {
	const op = "quotes.Decide"

	decision := strings.ToLower(strings.TrimSpace(req.Decision))
	if decision != StatusAccepted && decision != StatusDeclined {
		return Quote{}, apperr.Validation("decision must be accepted or declined")
	}

	var updated Quote
	err := s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		quote, err := load(ctx, q)
		if err != nil {
			return err
		}
		now := s.now()
		if actor == ActorCustomer && quote.Expired(now) {
			return apperr.Gone("quote link has expired")
		}
		if quote.DecisionAt != nil || (quote.Status != StatusPending && quote.Status != StatusSent) {
			return apperr.Conflict("quote has already been decided").WithReason(apperr.ReasonAlreadyDecided)
		}

		var notes *string
		if trimmed := strings.TrimSpace(req.Notes); trimmed != "" {
			notes = &trimmed
		}
		recorded, err := s.store.RecordDecision(ctx, q, quote.ID, decision, now, notes)
		if err != nil {
			return err
		}
		if !recorded {
			return apperr.Conflict("quote has already been decided").WithReason(apperr.ReasonAlreadyDecided)
		}
		if _, err := s.events.Insert(ctx, q, outbox.TypeQuoteDecided, outbox.QuoteDecidedPayload{
			QuoteID:  quote.ID,
			Decision: decision,
			Actor:    actor,
		}); err != nil {
			return err
		}

		quote.Status = decision
		quote.DecisionAt = &now
		quote.DecisionNotes = notes
		updated = quote
		return nil
	})
	if err != nil {
		return Quote{}, s.translate(op, err)
	}
	return updated, nil
}

// ScheduleJobRequest sets the job start and optional timing overrides.
type ScheduleJobRequest struct {
	StartAt             time.Time `json:"startAt" validate:"required"`
	DurationMinutes     *int      `json:"durationMinutes" validate:"omitempty,gte=15,lte=720"`
	TravelBufferMinutes *int      `json:"travelBufferMinutes" validate:"omitempty,gte=0,lte=240"`
	Notes               string    `json:"notes" validate:"max=2000"`
}

// ScheduleJob turns an accepted quote into a confirmed job appointment. The
// precondition reads and every write share one transaction, with the quote
// row locked, so a concurrent schedule or cancel cannot interleave.
func (s *Service) ScheduleJob(ctx context.Context, quoteID uuid.UUID, req ScheduleJobRequest) (appointments.Appointment, error) {
	const op = "quotes.ScheduleJob"

	if req.StartAt.IsZero() {
		return appointments.Appointment{}, apperr.Validation("start time is required")
	}
	rescheduleToken, err := s.tokens()
	if err != nil {
		return appointments.Appointment{}, apperr.Wrap(apperr.KindInternal, "could not generate token", err).WithOp(op)
	}

	var job appointments.Appointment
	err = s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		quote, err := s.store.GetByID(ctx, q, quoteID, true)
		if err != nil {
			return err
		}
		if quote.Status != StatusAccepted {
			return apperr.Conflict("quote must be accepted before scheduling").WithReason(apperr.ReasonQuoteNotAccepted)
		}
		if quote.JobAppointmentID != nil {
			return apperr.Conflict("quote already has a scheduled job").WithReason(apperr.ReasonAlreadyScheduled)
		}

		duration := s.engine.Catalog().EstimateDurationMinutes(quote.Services, quote.AddOns)
		if req.DurationMinutes != nil {
			duration = *req.DurationMinutes
		}
		buffer := DefaultTravelBufferMinutes
		if req.TravelBufferMinutes != nil {
			buffer = *req.TravelBufferMinutes
		}
		start := req.StartAt.UTC()
		now := s.now()

		job = appointments.Appointment{
			ID:                  uuid.New(),
			ContactID:           quote.ContactID,
			PropertyID:          quote.PropertyID,
			LeadID:              quote.LeadID,
			Type:                appointments.TypeJob,
			StartAt:             &start,
			DurationMinutes:     duration,
			TravelBufferMinutes: buffer,
			Status:              appointments.StatusConfirmed,
			RescheduleToken:     rescheduleToken,
			Notes:               strings.TrimSpace(req.Notes),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.appointments.Insert(ctx, q, job); err != nil {
			return err
		}
		if err := s.store.SetJobAppointment(ctx, q, quote.ID, job.ID); err != nil {
			return err
		}
		if quote.LeadID != nil {
			if err := s.leads.UpdateStatus(ctx, q, *quote.LeadID, leads.StatusScheduled); err != nil && !errors.Is(err, leads.ErrNotFound) {
				return err
			}
		}
		_, err = s.events.Insert(ctx, q, outbox.TypeJobScheduled, outbox.JobScheduledPayload{
			QuoteID:         quote.ID,
			AppointmentID:   job.ID,
			RescheduleToken: job.RescheduleToken,
			StartAt:         start,
		})
		return err
	})
	if err != nil {
		return appointments.Appointment{}, s.translate(op, err)
	}

	s.upsertStage(ctx, job.ContactID, contacts.StageJobScheduled, job.ID)
	s.runJobHooks(ctx, job)
	return job, nil
}

func (s *Service) runJobHooks(ctx context.Context, job appointments.Appointment) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.EnqueueCalendarSync(ctx, job.ID); err != nil {
		s.log.HookFailed("calendar.create_event", job.ID.String(), err)
	}
	if job.StartAt != nil {
		runAt := job.StartAt.Add(-appointments.ReminderLead)
		if runAt.After(s.now()) {
			if err := s.hooks.ScheduleAppointmentReminder(ctx, job.ID, runAt); err != nil {
				s.log.HookFailed("appointments.reminder", job.ID.String(), err)
			}
		}
	}
}

func (s *Service) upsertStage(ctx context.Context, contactID uuid.UUID, stage string, subject uuid.UUID) {
	err := s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		return s.stages.UpsertStage(ctx, q, contactID, stage)
	})
	if err != nil {
		s.log.HookFailed("crm.stage", subject.String(), err)
	}
}

func serviceIDs(items []pricing.LineItem, category, prefix string) []string {
	out := []string{}
	for _, item := range items {
		if item.Category == category {
			out = append(out, strings.TrimPrefix(item.ID, prefix))
		}
	}
	return out
}

func (s *Service) translate(op string, err error) error {
	var domainErr *apperr.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("quote not found").WithOp(op)
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, "quote changed concurrently", err).WithReason(apperr.ReasonDuplicate).WithOp(op)
	default:
		s.log.DatabaseError(op, err)
		return apperr.Wrap(apperr.KindInternal, "quote operation failed", err).WithOp(op)
	}
}
