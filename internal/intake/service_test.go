package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/ratelimit"
	"fieldops_backend/internal/tracking"
	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/db/dbtest"
	"fieldops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Type    string
	Payload any
}

// world is an in-memory store covering every table a submission touches.
type world struct {
	contacts     map[uuid.UUID]contacts.Contact
	properties   map[string]contacts.Property
	leads        map[uuid.UUID]leads.Lead
	appointments map[uuid.UUID]appointments.Appointment
	events       []recordedEvent
	stages       map[uuid.UUID]string
	failEvents   bool
	contactCalls int
}

type worldSnapshot struct {
	contacts     map[uuid.UUID]contacts.Contact
	properties   map[string]contacts.Property
	leads        map[uuid.UUID]leads.Lead
	appointments map[uuid.UUID]appointments.Appointment
	events       []recordedEvent
	stages       map[uuid.UUID]string
}

func newWorld() *world {
	return &world{
		contacts:     map[uuid.UUID]contacts.Contact{},
		properties:   map[string]contacts.Property{},
		leads:        map[uuid.UUID]leads.Lead{},
		appointments: map[uuid.UUID]appointments.Appointment{},
		stages:       map[uuid.UUID]string{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (w *world) Snapshot() any {
	return worldSnapshot{
		contacts:     copyMap(w.contacts),
		properties:   copyMap(w.properties),
		leads:        copyMap(w.leads),
		appointments: copyMap(w.appointments),
		events:       append([]recordedEvent(nil), w.events...),
		stages:       copyMap(w.stages),
	}
}

func (w *world) Restore(s any) {
	snap := s.(worldSnapshot)
	w.contacts, w.properties, w.leads = snap.contacts, snap.properties, snap.leads
	w.appointments, w.events, w.stages = snap.appointments, snap.events, snap.stages
}

func (w *world) FindContactByEmail(_ context.Context, _ db.DBTX, email string) (contacts.Contact, error) {
	w.contactCalls++
	for _, c := range w.contacts {
		if c.Email != nil && *c.Email == email {
			return c, nil
		}
	}
	return contacts.Contact{}, contacts.ErrNotFound
}

func (w *world) FindContactByPhone(_ context.Context, _ db.DBTX, e164 string) (contacts.Contact, error) {
	w.contactCalls++
	for _, c := range w.contacts {
		if c.PhoneE164 != nil && *c.PhoneE164 == e164 {
			return c, nil
		}
	}
	return contacts.Contact{}, contacts.ErrNotFound
}

func (w *world) InsertContact(_ context.Context, _ db.DBTX, c contacts.Contact) (contacts.Contact, error) {
	w.contactCalls++
	w.contacts[c.ID] = c
	return c, nil
}

func (w *world) UpdateContact(_ context.Context, _ db.DBTX, c contacts.Contact) (contacts.Contact, error) {
	w.contactCalls++
	existing := w.contacts[c.ID]
	existing.FirstName, existing.LastName = c.FirstName, c.LastName
	if existing.Email == nil {
		existing.Email = c.Email
	}
	if c.PhoneE164 != nil {
		existing.PhoneRaw, existing.PhoneE164 = c.PhoneRaw, c.PhoneE164
	}
	w.contacts[c.ID] = existing
	return existing, nil
}

func (w *world) ClaimProperty(_ context.Context, _ db.DBTX, p contacts.Property) (contacts.Property, error) {
	w.contactCalls++
	key := p.AddressLine1 + "|" + p.PostalCode + "|" + p.State
	if existing, ok := w.properties[key]; ok {
		existing.ContactID, existing.City, existing.Gated = p.ContactID, p.City, p.Gated
		w.properties[key] = existing
		return existing, nil
	}
	w.properties[key] = p
	return p, nil
}

func (w *world) UpsertStage(_ context.Context, _ db.DBTX, contactID uuid.UUID, stage string) error {
	w.stages[contactID] = stage
	return nil
}

type leadTable struct{ w *world }

func (t leadTable) Insert(_ context.Context, _ db.DBTX, l leads.Lead) error {
	t.w.leads[l.ID] = l
	return nil
}

type appointmentTable struct{ w *world }

func (t appointmentTable) Insert(_ context.Context, _ db.DBTX, a appointments.Appointment) error {
	t.w.appointments[a.ID] = a
	return nil
}

type eventTable struct{ w *world }

func (t eventTable) Insert(_ context.Context, _ db.DBTX, eventType string, payload any) (uuid.UUID, error) {
	if t.w.failEvents {
		return uuid.Nil, errors.New("connection reset")
	}
	t.w.events = append(t.w.events, recordedEvent{Type: eventType, Payload: payload})
	return uuid.New(), nil
}

type hookRecorder struct {
	calendar    []uuid.UUID
	conversions []tracking.Conversion
	fail        bool
}

func (h *hookRecorder) EnqueueCalendarSync(_ context.Context, id uuid.UUID) error {
	if h.fail {
		return errors.New("redis down")
	}
	h.calendar = append(h.calendar, id)
	return nil
}

func (h *hookRecorder) EnqueueConversionPing(_ context.Context, conv tracking.Conversion) error {
	if h.fail {
		return errors.New("redis down")
	}
	h.conversions = append(h.conversions, conv)
	return nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

type fixture struct {
	w     *world
	tx    *dbtest.Transactor
	svc   *Service
	hooks *hookRecorder
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	w := newWorld()
	tx := dbtest.NewTransactor(w)
	hooks := &hookRecorder{}
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(1000, time.Minute, 100)
	}
	svc := NewService(Deps{
		Tx:           tx,
		Contacts:     contacts.NewDirectory(w, "US"),
		Leads:        leadTable{w},
		Appointments: appointmentTable{w},
		Events:       eventTable{w},
		Stages:       w,
		Limiter:      limiter,
		Resolver:     appointments.NewDefaultTimingResolver(time.UTC),
		Hooks:        hooks,
		Tokens:       func() (string, error) { return uuid.NewString(), nil },
		Log:          logger.Nop(),
	})
	return &fixture{w: w, tx: tx, svc: svc, hooks: hooks}
}

func validRequest() SubmitLeadRequest {
	return SubmitLeadRequest{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		Phone:        "(202) 555-0143",
		AddressLine1: "12 Elm St",
		City:         "Springfield",
		State:        "il",
		PostalCode:   "62701",
		Services:     []string{"house-wash", "gutter-cleaning"},
		Notes:        "Back gate is <b>locked</b>",
	}
}

func (f *fixture) totalRows() int {
	return len(f.w.contacts) + len(f.w.properties) + len(f.w.leads) + len(f.w.appointments) + len(f.w.events)
}

func TestSubmitLead_PlainLeadCreatesOneOfEach(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", validRequest())
	require.NoError(t, err)
	assert.False(t, res.Ignored)
	assert.Nil(t, res.Appointment)

	assert.Len(t, f.w.contacts, 1)
	assert.Len(t, f.w.properties, 1)
	assert.Len(t, f.w.leads, 1)
	assert.Empty(t, f.w.appointments)
	require.Len(t, f.w.events, 1)
	assert.Equal(t, outbox.TypeLeadCreated, f.w.events[0].Type)

	lead := f.w.leads[res.LeadID]
	assert.Equal(t, leads.StatusNew, lead.Status)
	assert.Equal(t, "Back gate is locked", lead.Notes)
	assert.Equal(t, []string{"house-wash", "gutter-cleaning"}, lead.Services)
	assert.Equal(t, contacts.StageNewLead, f.w.stages[res.ContactID])
	assert.Empty(t, f.hooks.calendar)
	assert.Empty(t, f.hooks.conversions)
}

func TestSubmitLead_EstimateCreatesRequestedAppointment(t *testing.T) {
	f := newFixture(t, nil)
	req := validRequest()
	req.RequestEstimate = true
	req.PreferredDate = "2026-05-12"
	req.PreferredWindow = "afternoon"
	req.UTMSource = "google"

	res, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
	require.NoError(t, err)
	require.NotNil(t, res.Appointment)

	appt := f.w.appointments[res.Appointment.ID]
	assert.Equal(t, appointments.StatusRequested, appt.Status)
	assert.Equal(t, appointments.TypeEstimate, appt.Type)
	assert.NotEmpty(t, appt.RescheduleToken)
	require.NotNil(t, appt.StartAt)
	assert.Equal(t, time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC), *appt.StartAt)
	assert.Equal(t, leads.StatusScheduled, f.w.leads[res.LeadID].Status)

	require.Len(t, f.w.events, 1)
	assert.Equal(t, outbox.TypeEstimateRequested, f.w.events[0].Type)
	payload := f.w.events[0].Payload.(outbox.EstimateRequestedPayload)
	assert.Equal(t, res.LeadID, payload.LeadID)
	assert.Equal(t, appt.RescheduleToken, payload.RescheduleToken)
	assert.Equal(t, "afternoon", payload.Window)

	assert.Equal(t, []uuid.UUID{appt.ID}, f.hooks.calendar)
	require.Len(t, f.hooks.conversions, 1)
	assert.Equal(t, "google", f.hooks.conversions[0].UTMSource)
	assert.Equal(t, contacts.StageEstimateBooked, f.w.stages[res.ContactID])
}

func TestSubmitLead_FailureBeforeCommitLeavesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.w.failEvents = true
	req := validRequest()
	req.RequestEstimate = true

	_, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Zero(t, f.totalRows())
	assert.Empty(t, f.w.stages)
	assert.Empty(t, f.hooks.calendar)
	assert.Equal(t, 1, f.tx.Rollbacks)
}

func TestSubmitLead_SameEmailUpdatesPhoneKeepsEmail(t *testing.T) {
	f := newFixture(t, nil)
	first, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Phone = "202-555-0199"
	second, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
	require.NoError(t, err)

	assert.Equal(t, first.ContactID, second.ContactID)
	require.Len(t, f.w.contacts, 1)
	contact := f.w.contacts[first.ContactID]
	assert.Equal(t, "+12025550199", *contact.PhoneE164)
	assert.Equal(t, "ada@example.com", *contact.Email)
	assert.Len(t, f.w.leads, 2)
}

func TestSubmitLead_SameAddressDifferentContactClaimsProperty(t *testing.T) {
	f := newFixture(t, nil)
	first, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Email = "tenant@example.com"
	req.Phone = "312-555-0100"
	req.City = "Springfield Township"
	second, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ContactID, second.ContactID)
	assert.Equal(t, first.PropertyID, second.PropertyID)
	require.Len(t, f.w.properties, 1)
	for _, p := range f.w.properties {
		assert.Equal(t, second.ContactID, p.ContactID)
		assert.Equal(t, "Springfield Township", p.City)
	}
}

func TestSubmitLead_HoneypotWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	req := validRequest()
	req.Website = "http://spam.example"

	res, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Zero(t, f.totalRows())
	assert.Zero(t, f.tx.Commits)
}

func TestSubmitLead_RateLimit(t *testing.T) {
	f := newFixture(t, ratelimit.NewMemoryLimiter(3, time.Minute, 100))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.SubmitLead(ctx, "198.51.100.1", validRequest())
		require.NoError(t, err)
	}
	_, err := f.svc.SubmitLead(ctx, "198.51.100.1", validRequest())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRateLimited))
	assert.Len(t, f.w.leads, 3)

	_, err = f.svc.SubmitLead(ctx, "198.51.100.2", validRequest())
	assert.NoError(t, err)
}

func TestSubmitLead_UnknownClientRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.SubmitLead(context.Background(), "  ", validRequest())
	assert.True(t, apperr.Is(err, apperr.KindRateLimited))
	assert.Zero(t, f.totalRows())
}

func TestSubmitLead_LimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t, brokenLimiter{})
	_, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", validRequest())
	assert.NoError(t, err)
}

func TestSubmitLead_ValidationReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SubmitLeadRequest)
		reason string
	}{
		{"no services", func(r *SubmitLeadRequest) { r.Services = []string{" ", ""} }, apperr.ReasonServicesRequired},
		{"bad phone", func(r *SubmitLeadRequest) { r.Phone = "12" }, apperr.ReasonInvalidPhone},
		{"blank address", func(r *SubmitLeadRequest) { r.AddressLine1 = "   " }, apperr.ReasonAddressRequired},
		{"blank city", func(r *SubmitLeadRequest) { r.City = "\t" }, apperr.ReasonAddressRequired},
		{"bad state", func(r *SubmitLeadRequest) { r.State = "I" }, apperr.ReasonAddressRequired},
		{"missing postal code", func(r *SubmitLeadRequest) { r.PostalCode = "" }, apperr.ReasonAddressRequired},
		{"bad email", func(r *SubmitLeadRequest) { r.Email = "not-an-email" }, apperr.ReasonValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := validRequest()
			tc.mutate(&req)

			_, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tc.reason, apperr.ReasonOf(err))
			assert.Zero(t, f.totalRows())
			assert.Zero(t, f.w.contactCalls, "contact store must not be touched")
			assert.Zero(t, f.tx.Commits+f.tx.Rollbacks)
		})
	}
}

func TestSubmitLead_HookFailuresDoNotFailSubmission(t *testing.T) {
	f := newFixture(t, nil)
	f.hooks.fail = true
	req := validRequest()
	req.RequestEstimate = true
	req.Referrer = "friend"

	res, err := f.svc.SubmitLead(context.Background(), "203.0.113.7", req)
	require.NoError(t, err)
	assert.NotNil(t, res.Appointment)
	assert.Len(t, f.w.events, 1)
}
