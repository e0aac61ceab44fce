package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/quotes"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	appointments map[uuid.UUID]appointments.Appointment
	contacts     map[uuid.UUID]contacts.Contact
	properties   map[uuid.UUID]contacts.Property
	leads        map[uuid.UUID]leads.Lead
	quotes       map[uuid.UUID]quotes.Quote
}

type appointmentReader struct{ s *state }

func (r appointmentReader) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID, _ bool) (appointments.Appointment, error) {
	a, ok := r.s.appointments[id]
	if !ok {
		return appointments.Appointment{}, appointments.ErrNotFound
	}
	return a, nil
}

type contactReader struct{ s *state }

func (r contactReader) GetContact(_ context.Context, _ db.DBTX, id uuid.UUID) (contacts.Contact, error) {
	c, ok := r.s.contacts[id]
	if !ok {
		return contacts.Contact{}, contacts.ErrNotFound
	}
	return c, nil
}

func (r contactReader) GetProperty(_ context.Context, _ db.DBTX, id uuid.UUID) (contacts.Property, error) {
	p, ok := r.s.properties[id]
	if !ok {
		return contacts.Property{}, contacts.ErrNotFound
	}
	return p, nil
}

type leadReader struct{ s *state }

func (r leadReader) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID) (leads.Lead, error) {
	l, ok := r.s.leads[id]
	if !ok {
		return leads.Lead{}, leads.ErrNotFound
	}
	return l, nil
}

type quoteReader struct{ s *state }

func (r quoteReader) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID, _ bool) (quotes.Quote, error) {
	q, ok := r.s.quotes[id]
	if !ok {
		return quotes.Quote{}, quotes.ErrNotFound
	}
	return q, nil
}

type sent struct {
	kind   string
	reason string
	visit  EstimatePayload
	quote  QuoteLinkPayload
	alert  StaffAlert
}

type recordingNotifier struct {
	sent []sent
	fail bool
}

func (n *recordingNotifier) SendEstimateConfirmation(_ context.Context, p EstimatePayload, reason string) error {
	if n.fail {
		return errors.New("smtp down")
	}
	n.sent = append(n.sent, sent{kind: "confirmation", reason: reason, visit: p})
	return nil
}

func (n *recordingNotifier) SendReminder(_ context.Context, p EstimatePayload, window string) error {
	n.sent = append(n.sent, sent{kind: "reminder", reason: window, visit: p})
	return nil
}

func (n *recordingNotifier) SendStaffAlert(_ context.Context, alert StaffAlert) error {
	n.sent = append(n.sent, sent{kind: "staff", alert: alert})
	return nil
}

func (n *recordingNotifier) SendQuoteLink(_ context.Context, p QuoteLinkPayload) error {
	n.sent = append(n.sent, sent{kind: "quote", quote: p})
	return nil
}

type calendarRecorder struct{ deleted []string }

func (c *calendarRecorder) DeleteEvent(_ context.Context, id string) error {
	c.deleted = append(c.deleted, id)
	return nil
}

type fixture struct {
	s        *state
	notifier *recordingNotifier
	calendar *calendarRecorder
	registry *outbox.Registry
	handlers *Handlers
}

func newFixture() *fixture {
	s := &state{
		appointments: map[uuid.UUID]appointments.Appointment{},
		contacts:     map[uuid.UUID]contacts.Contact{},
		properties:   map[uuid.UUID]contacts.Property{},
		leads:        map[uuid.UUID]leads.Lead{},
		quotes:       map[uuid.UUID]quotes.Quote{},
	}
	notifier := &recordingNotifier{}
	calendar := &calendarRecorder{}
	h := NewHandlers(Deps{
		Appointments: appointmentReader{s},
		Contacts:     contactReader{s},
		Leads:        leadReader{s},
		Quotes:       quoteReader{s},
		Notifier:     notifier,
		Calendar:     calendar,
		BaseURL:      "https://example.com/",
		Log:          logger.Nop(),
	})
	reg := outbox.NewRegistry()
	h.Register(reg)
	return &fixture{s: s, notifier: notifier, calendar: calendar, registry: reg, handlers: h}
}

func strPtr(s string) *string { return &s }

func (f *fixture) seedVisit(status string, start *time.Time) appointments.Appointment {
	contact := contacts.Contact{ID: uuid.New(), FirstName: "Ada", LastName: "Lovelace", Email: strPtr("ada@example.com")}
	property := contacts.Property{ID: uuid.New(), ContactID: contact.ID, AddressLine1: "12 Elm St", City: "Springfield", State: "IL", PostalCode: "62701"}
	lead := leads.Lead{ID: uuid.New(), Services: []string{"house-wash"}}
	appt := appointments.Appointment{
		ID:              uuid.New(),
		ContactID:       contact.ID,
		PropertyID:      property.ID,
		LeadID:          &lead.ID,
		Type:            appointments.TypeEstimate,
		StartAt:         start,
		DurationMinutes: 60,
		Status:          status,
		RescheduleToken: "tok-1",
	}
	f.s.contacts[contact.ID] = contact
	f.s.properties[property.ID] = property
	f.s.leads[lead.ID] = lead
	f.s.appointments[appt.ID] = appt
	return appt
}

// singleEventStore hands one event to the dispatcher and records how it was
// marked.
type singleEventStore struct {
	events    []outbox.Event
	outcome   outbox.Outcome
	lastError string
}

func (s *singleEventStore) Claim(context.Context, int, time.Duration) ([]outbox.Event, error) {
	out := s.events
	s.events = nil
	return out, nil
}

func (s *singleEventStore) Renew(context.Context, outbox.Event, time.Duration) (bool, error) {
	return true, nil
}

func (s *singleEventStore) MarkProcessed(_ context.Context, _ outbox.Event, outcome outbox.Outcome, lastError string) (bool, error) {
	s.outcome = outcome
	s.lastError = lastError
	return true, nil
}

func dispatchRaw(t *testing.T, f *fixture, eventType string, raw json.RawMessage) (outbox.Outcome, string) {
	t.Helper()
	store := &singleEventStore{events: []outbox.Event{{ID: uuid.New(), Type: eventType, Payload: raw}}}
	d := outbox.NewDispatcher(store, f.registry, logger.Nop(), time.Minute)
	result, err := d.ProcessBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	return store.outcome, store.lastError
}

func dispatch(t *testing.T, f *fixture, eventType string, payload any) (outbox.Outcome, string) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return dispatchRaw(t, f, eventType, raw)
}

func TestEstimateRequested_OverlaysPayloadOnCurrentState(t *testing.T) {
	f := newFixture()
	stored := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	appt := f.seedVisit(appointments.StatusRequested, &stored)
	override := time.Date(2026, 5, 5, 14, 0, 0, 0, time.UTC)

	outcome, _ := dispatch(t, f, outbox.TypeEstimateRequested, outbox.EstimateRequestedPayload{
		AppointmentID: appt.ID,
		StartAt:       &override,
		Window:        "afternoon",
	})
	assert.Equal(t, outbox.OutcomeProcessed, outcome)

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, ReasonRequested, msg.reason)
	assert.Equal(t, override, *msg.visit.StartAt)
	assert.Equal(t, []string{"house-wash"}, msg.visit.Services)
	assert.Equal(t, "https://example.com/appointments/tok-1", msg.visit.RescheduleURL)
	assert.Equal(t, "12 Elm St, Springfield, IL 62701", msg.visit.Address)
}

func TestEstimateRescheduled_SkipsMissingRowsAndTokens(t *testing.T) {
	f := newFixture()

	outcome, _ := dispatch(t, f, outbox.TypeEstimateRescheduled, outbox.EstimateRescheduledPayload{AppointmentID: uuid.New()})
	assert.Equal(t, outbox.OutcomeSkipped, outcome)

	appt := f.seedVisit(appointments.StatusRequested, nil)
	appt.RescheduleToken = ""
	f.s.appointments[appt.ID] = appt
	outcome, _ = dispatch(t, f, outbox.TypeEstimateRescheduled, outbox.EstimateRescheduledPayload{AppointmentID: appt.ID})
	assert.Equal(t, outbox.OutcomeSkipped, outcome)
	assert.Empty(t, f.notifier.sent)
}

func TestEstimateRescheduled_DeletesPreviousCalendarEvent(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	appt := f.seedVisit(appointments.StatusRequested, &start)

	outcome, _ := dispatch(t, f, outbox.TypeEstimateRescheduled, outbox.EstimateRescheduledPayload{
		AppointmentID:           appt.ID,
		StartAt:                 &start,
		PreviousCalendarEventID: "evt-old",
	})
	assert.Equal(t, outbox.OutcomeProcessed, outcome)
	assert.Equal(t, []string{"evt-old"}, f.calendar.deleted)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, ReasonRescheduled, f.notifier.sent[0].reason)
}

func TestMalformedPayloadIsSkipped(t *testing.T) {
	f := newFixture()
	outcome, _ := dispatchRaw(t, f, outbox.TypeEstimateRequested, json.RawMessage(`[1,2]`))
	assert.Equal(t, outbox.OutcomeSkipped, outcome)
	assert.Empty(t, f.notifier.sent)

	outcome, _ = dispatchRaw(t, f, "unknown.type", json.RawMessage(`{}`))
	assert.Equal(t, outbox.OutcomeSkipped, outcome)
}

func TestNotifierFailureIsAnError(t *testing.T) {
	f := newFixture()
	f.notifier.fail = true
	appt := f.seedVisit(appointments.StatusConfirmed, nil)

	outcome, lastError := dispatch(t, f, outbox.TypeAppointmentConfirmed, outbox.AppointmentConfirmedPayload{AppointmentID: appt.ID})
	assert.Equal(t, outbox.OutcomeError, outcome)
	assert.Equal(t, "smtp down", lastError)
}

func TestAppointmentCanceled_DeletesCalendarEvent(t *testing.T) {
	f := newFixture()

	outcome, _ := dispatch(t, f, outbox.TypeAppointmentCanceled, outbox.AppointmentCanceledPayload{AppointmentID: uuid.New(), CalendarEventID: "evt-9"})
	assert.Equal(t, outbox.OutcomeProcessed, outcome)
	assert.Equal(t, []string{"evt-9"}, f.calendar.deleted)

	outcome, _ = dispatch(t, f, outbox.TypeAppointmentCanceled, outbox.AppointmentCanceledPayload{AppointmentID: uuid.New()})
	assert.Equal(t, outbox.OutcomeSkipped, outcome)
}

func TestQuoteSent_SendsShareLink(t *testing.T) {
	f := newFixture()
	appt := f.seedVisit(appointments.StatusConfirmed, nil)
	q := quotes.Quote{ID: uuid.New(), ContactID: appt.ContactID, Status: quotes.StatusSent, TotalCents: 33500, ShareToken: "share-1"}
	f.s.quotes[q.ID] = q

	outcome, _ := dispatch(t, f, outbox.TypeQuoteSent, outbox.QuoteSentPayload{QuoteID: q.ID, ShareToken: "share-1"})
	assert.Equal(t, outbox.OutcomeProcessed, outcome)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "https://example.com/quotes/share-1", f.notifier.sent[0].quote.URL)
	assert.Equal(t, "ada@example.com", f.notifier.sent[0].quote.Email)
}

func TestLeadCreated_AlertsStaff(t *testing.T) {
	f := newFixture()
	appt := f.seedVisit(appointments.StatusRequested, nil)

	outcome, _ := dispatch(t, f, outbox.TypeLeadCreated, outbox.LeadCreatedPayload{
		LeadID:     *appt.LeadID,
		ContactID:  appt.ContactID,
		PropertyID: appt.PropertyID,
		Services:   []string{"house-wash"},
	})
	assert.Equal(t, outbox.OutcomeProcessed, outcome)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "staff", f.notifier.sent[0].kind)
	assert.Contains(t, f.notifier.sent[0].alert.Lines, "Customer: Ada Lovelace")
}

func TestSendReminder(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	appt := f.seedVisit(appointments.StatusConfirmed, &start)

	outcome, err := f.handlers.SendReminder(context.Background(), appt.ID, start.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, outbox.OutcomeProcessed, outcome)

	outcome, err = f.handlers.SendReminder(context.Background(), appt.ID, start.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, outbox.OutcomeSkipped, outcome)

	appt.Status = appointments.StatusCanceled
	f.s.appointments[appt.ID] = appt
	outcome, err = f.handlers.SendReminder(context.Background(), appt.ID, start.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, outbox.OutcomeSkipped, outcome)
	assert.Len(t, f.notifier.sent, 1)
}
