package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/quotes"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"

	"github.com/google/uuid"
)

// AppointmentReader loads appointments.
type AppointmentReader interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (appointments.Appointment, error)
}

// ContactReader loads contacts and properties.
type ContactReader interface {
	GetContact(ctx context.Context, q db.DBTX, id uuid.UUID) (contacts.Contact, error)
	GetProperty(ctx context.Context, q db.DBTX, id uuid.UUID) (contacts.Property, error)
}

// LeadReader loads leads.
type LeadReader interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (leads.Lead, error)
}

// QuoteReader loads quotes.
type QuoteReader interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (quotes.Quote, error)
}

// CalendarSync removes provider events for canceled or moved visits.
type CalendarSync interface {
	DeleteEvent(ctx context.Context, externalID string) error
}

// Deps groups the Handlers collaborators.
type Deps struct {
	DB           db.DBTX
	Appointments AppointmentReader
	Contacts     ContactReader
	Leads        LeadReader
	Quotes       QuoteReader
	Notifier     Notifier
	Calendar     CalendarSync
	BaseURL      string
	Log          *logger.Logger
}

// Handlers reacts to outbox events.
type Handlers struct {
	db           db.DBTX
	appointments AppointmentReader
	contacts     ContactReader
	leads        LeadReader
	quotes       QuoteReader
	notifier     Notifier
	calendar     CalendarSync
	baseURL      string
	log          *logger.Logger
}

// NewHandlers creates Handlers.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		db:           d.DB,
		appointments: d.Appointments,
		contacts:     d.Contacts,
		leads:        d.Leads,
		quotes:       d.Quotes,
		notifier:     d.Notifier,
		calendar:     d.Calendar,
		baseURL:      strings.TrimRight(d.BaseURL, "/"),
		log:          d.Log,
	}
}

// Register binds every notification handler on reg.
func (h *Handlers) Register(reg *outbox.Registry) {
	reg.Register(outbox.TypeLeadCreated, outbox.Typed(h.onLeadCreated))
	reg.Register(outbox.TypeEstimateRequested, outbox.Typed(h.onEstimateRequested))
	reg.Register(outbox.TypeEstimateRescheduled, outbox.Typed(h.onEstimateRescheduled))
	reg.Register(outbox.TypeAppointmentConfirmed, outbox.Typed(h.onAppointmentConfirmed))
	reg.Register(outbox.TypeAppointmentCanceled, outbox.Typed(h.onAppointmentCanceled))
	reg.Register(outbox.TypeQuoteCreated, outbox.Typed(h.onQuoteCreated))
	reg.Register(outbox.TypeQuoteSent, outbox.Typed(h.onQuoteSent))
	reg.Register(outbox.TypeQuoteDecided, outbox.Typed(h.onQuoteDecided))
	reg.Register(outbox.TypeJobScheduled, outbox.Typed(h.onJobScheduled))
}

// override is the subset of visit fields an event may carry on top of
// current state.
type override struct {
	rescheduleToken string
	startAt         *time.Time
	durationMinutes int
	window          string
	services        []string
}

func (h *Handlers) onLeadCreated(ctx context.Context, _ outbox.Event, p outbox.LeadCreatedPayload) (outbox.Outcome, error) {
	contact, err := h.contacts.GetContact(ctx, h.db, p.ContactID)
	if errors.Is(err, contacts.ErrNotFound) {
		return outbox.OutcomeSkipped, nil
	}
	if err != nil {
		return outbox.OutcomeError, err
	}
	lines := []string{
		"Customer: " + contact.FullName(),
		"Services: " + strings.Join(p.Services, ", "),
	}
	if contact.PhoneE164 != nil {
		lines = append(lines, "Phone: "+*contact.PhoneE164)
	}
	if property, err := h.contacts.GetProperty(ctx, h.db, p.PropertyID); err == nil {
		lines = append(lines, "Address: "+property.OneLine())
	}
	if err := h.notifier.SendStaffAlert(ctx, StaffAlert{Subject: "New lead", Lines: lines}); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

func (h *Handlers) onEstimateRequested(ctx context.Context, _ outbox.Event, p outbox.EstimateRequestedPayload) (outbox.Outcome, error) {
	return h.confirmVisit(ctx, p.AppointmentID, override{
		rescheduleToken: p.RescheduleToken,
		startAt:         p.StartAt,
		durationMinutes: p.DurationMinutes,
		window:          p.Window,
		services:        p.Services,
	}, ReasonRequested)
}

func (h *Handlers) onEstimateRescheduled(ctx context.Context, _ outbox.Event, p outbox.EstimateRescheduledPayload) (outbox.Outcome, error) {
	if p.PreviousCalendarEventID != "" && h.calendar != nil {
		if err := h.calendar.DeleteEvent(ctx, p.PreviousCalendarEventID); err != nil {
			h.log.Warn("stale calendar event not deleted", "appointment_id", p.AppointmentID, "external_id", p.PreviousCalendarEventID, "error", err)
		}
	}
	return h.confirmVisit(ctx, p.AppointmentID, override{
		rescheduleToken: p.RescheduleToken,
		startAt:         p.StartAt,
		window:          p.Window,
	}, ReasonRescheduled)
}

func (h *Handlers) onAppointmentConfirmed(ctx context.Context, _ outbox.Event, p outbox.AppointmentConfirmedPayload) (outbox.Outcome, error) {
	return h.confirmVisit(ctx, p.AppointmentID, override{rescheduleToken: p.RescheduleToken}, ReasonConfirmed)
}

func (h *Handlers) onJobScheduled(ctx context.Context, _ outbox.Event, p outbox.JobScheduledPayload) (outbox.Outcome, error) {
	start := p.StartAt
	return h.confirmVisit(ctx, p.AppointmentID, override{rescheduleToken: p.RescheduleToken, startAt: &start}, ReasonJob)
}

func (h *Handlers) onAppointmentCanceled(ctx context.Context, _ outbox.Event, p outbox.AppointmentCanceledPayload) (outbox.Outcome, error) {
	if p.CalendarEventID == "" || h.calendar == nil {
		return outbox.OutcomeSkipped, nil
	}
	if err := h.calendar.DeleteEvent(ctx, p.CalendarEventID); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

func (h *Handlers) onQuoteCreated(ctx context.Context, _ outbox.Event, p outbox.QuoteCreatedPayload) (outbox.Outcome, error) {
	alert := StaffAlert{
		Subject: "Quote created",
		Lines:   []string{"Quote: " + p.QuoteID.String(), "Total: " + formatCents(p.TotalCents)},
	}
	if contact, err := h.contacts.GetContact(ctx, h.db, p.ContactID); err == nil {
		alert.Lines = append(alert.Lines, "Customer: "+contact.FullName())
	}
	if err := h.notifier.SendStaffAlert(ctx, alert); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

func (h *Handlers) onQuoteSent(ctx context.Context, _ outbox.Event, p outbox.QuoteSentPayload) (outbox.Outcome, error) {
	quote, err := h.quotes.GetByID(ctx, h.db, p.QuoteID, false)
	if errors.Is(err, quotes.ErrNotFound) {
		return outbox.OutcomeSkipped, nil
	}
	if err != nil {
		return outbox.OutcomeError, err
	}
	shareToken := p.ShareToken
	if shareToken == "" {
		shareToken = quote.ShareToken
	}
	if shareToken == "" || quote.Status != quotes.StatusSent {
		return outbox.OutcomeSkipped, nil
	}

	contact, err := h.contacts.GetContact(ctx, h.db, quote.ContactID)
	if errors.Is(err, contacts.ErrNotFound) {
		return outbox.OutcomeSkipped, nil
	}
	if err != nil {
		return outbox.OutcomeError, err
	}
	if contact.Email == nil {
		return outbox.OutcomeSkipped, nil
	}

	if err := h.notifier.SendQuoteLink(ctx, QuoteLinkPayload{
		QuoteID:         quote.ID,
		CustomerName:    contact.FullName(),
		Email:           *contact.Email,
		TotalCents:      quote.TotalCents,
		DepositDueCents: quote.DepositDueCents,
		ExpiresAt:       quote.ExpiresAt,
		URL:             h.baseURL + "/quotes/" + shareToken,
	}); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

func (h *Handlers) onQuoteDecided(ctx context.Context, _ outbox.Event, p outbox.QuoteDecidedPayload) (outbox.Outcome, error) {
	alert := StaffAlert{
		Subject: fmt.Sprintf("Quote %s", p.Decision),
		Lines:   []string{"Quote: " + p.QuoteID.String(), "Decided by: " + p.Actor},
	}
	if err := h.notifier.SendStaffAlert(ctx, alert); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

// confirmVisit rebuilds the visit from current state, applies the event's
// overrides and sends the confirmation. Missing rows, a missing reschedule
// token or a customer without email skip the event.
func (h *Handlers) confirmVisit(ctx context.Context, appointmentID uuid.UUID, o override, reason string) (outbox.Outcome, error) {
	payload, ok, err := h.buildVisit(ctx, appointmentID, o)
	if err != nil {
		return outbox.OutcomeError, err
	}
	if !ok {
		return outbox.OutcomeSkipped, nil
	}
	if err := h.notifier.SendEstimateConfirmation(ctx, payload, reason); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

// SendReminder sends the day-before reminder. It skips visits that are no
// longer confirmed or whose start moved away from scheduledFor.
func (h *Handlers) SendReminder(ctx context.Context, appointmentID uuid.UUID, scheduledFor time.Time) (outbox.Outcome, error) {
	appt, err := h.appointments.GetByID(ctx, h.db, appointmentID, false)
	if errors.Is(err, appointments.ErrNotFound) {
		return outbox.OutcomeSkipped, nil
	}
	if err != nil {
		return outbox.OutcomeError, err
	}
	if appt.Status != appointments.StatusConfirmed || appt.StartAt == nil {
		return outbox.OutcomeSkipped, nil
	}
	if !scheduledFor.IsZero() && !appt.StartAt.Add(-appointments.ReminderLead).Equal(scheduledFor) {
		return outbox.OutcomeSkipped, nil
	}

	payload, ok, err := h.buildVisit(ctx, appointmentID, override{})
	if err != nil {
		return outbox.OutcomeError, err
	}
	if !ok {
		return outbox.OutcomeSkipped, nil
	}
	if err := h.notifier.SendReminder(ctx, payload, payload.Window); err != nil {
		return outbox.OutcomeError, err
	}
	return outbox.OutcomeProcessed, nil
}

func (h *Handlers) buildVisit(ctx context.Context, appointmentID uuid.UUID, o override) (EstimatePayload, bool, error) {
	appt, err := h.appointments.GetByID(ctx, h.db, appointmentID, false)
	if errors.Is(err, appointments.ErrNotFound) {
		return EstimatePayload{}, false, nil
	}
	if err != nil {
		return EstimatePayload{}, false, err
	}

	token := o.rescheduleToken
	if token == "" {
		token = appt.RescheduleToken
	}
	if token == "" {
		return EstimatePayload{}, false, nil
	}

	contact, err := h.contacts.GetContact(ctx, h.db, appt.ContactID)
	if errors.Is(err, contacts.ErrNotFound) {
		return EstimatePayload{}, false, nil
	}
	if err != nil {
		return EstimatePayload{}, false, err
	}
	if contact.Email == nil || *contact.Email == "" {
		return EstimatePayload{}, false, nil
	}
	property, err := h.contacts.GetProperty(ctx, h.db, appt.PropertyID)
	if errors.Is(err, contacts.ErrNotFound) {
		return EstimatePayload{}, false, nil
	}
	if err != nil {
		return EstimatePayload{}, false, err
	}

	payload := EstimatePayload{
		AppointmentID:   appt.ID,
		AppointmentType: appt.Type,
		CustomerName:    contact.FullName(),
		Email:           *contact.Email,
		Address:         property.OneLine(),
		StartAt:         appt.StartAt,
		DurationMinutes: appt.DurationMinutes,
		Window:          o.window,
		RescheduleURL:   h.baseURL + "/appointments/" + token,
	}
	if contact.PhoneE164 != nil {
		payload.Phone = *contact.PhoneE164
	}

	services := o.services
	if len(services) == 0 && appt.LeadID != nil {
		lead, err := h.leads.GetByID(ctx, h.db, *appt.LeadID)
		switch {
		case err == nil:
			services = lead.Services
		case !errors.Is(err, leads.ErrNotFound):
			return EstimatePayload{}, false, err
		}
	}
	payload.Services = services

	if o.startAt != nil {
		payload.StartAt = o.startAt
	}
	if o.durationMinutes > 0 {
		payload.DurationMinutes = o.durationMinutes
	}
	return payload, true, nil
}
