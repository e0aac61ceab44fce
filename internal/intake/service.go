package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fieldops_backend/internal/appointments"
	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/leads"
	"fieldops_backend/internal/outbox"
	"fieldops_backend/internal/ratelimit"
	"fieldops_backend/internal/tracking"
	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"
	"fieldops_backend/platform/sanitize"
	"fieldops_backend/platform/token"
	"fieldops_backend/platform/validator"

	"github.com/google/uuid"
)

// ContactResolver resolves identities and addresses inside the caller's
// transaction.
type ContactResolver interface {
	CheckIdentity(id contacts.Identity) error
	UpsertContact(ctx context.Context, q db.DBTX, id contacts.Identity) (contacts.Contact, error)
	UpsertProperty(ctx context.Context, q db.DBTX, contactID uuid.UUID, addr contacts.Address) (contacts.Property, error)
}

// LeadWriter inserts leads.
type LeadWriter interface {
	Insert(ctx context.Context, q db.DBTX, l leads.Lead) error
}

// AppointmentWriter inserts estimate appointments.
type AppointmentWriter interface {
	Insert(ctx context.Context, q db.DBTX, a appointments.Appointment) error
}

// EventWriter appends outbox events inside a transaction.
type EventWriter interface {
	Insert(ctx context.Context, q db.DBTX, eventType string, payload any) (uuid.UUID, error)
}

// StageWriter upserts the contact's CRM stage.
type StageWriter interface {
	UpsertStage(ctx context.Context, q db.DBTX, contactID uuid.UUID, stage string) error
}

// PostCommitHooks run after the submission is committed. Their errors are
// logged and never change the response.
type PostCommitHooks interface {
	EnqueueCalendarSync(ctx context.Context, appointmentID uuid.UUID) error
	EnqueueConversionPing(ctx context.Context, conv tracking.Conversion) error
}

// Deps groups the Service collaborators.
type Deps struct {
	Tx           db.Transactor
	Contacts     ContactResolver
	Leads        LeadWriter
	Appointments AppointmentWriter
	Events       EventWriter
	Stages       StageWriter
	Limiter      ratelimit.Limiter
	Resolver     appointments.TimingResolver
	Hooks        PostCommitHooks
	Validator    *validator.Validator
	Tokens       token.Generator
	Log          *logger.Logger
}

// Service implements lead submission.
type Service struct {
	tx           db.Transactor
	contacts     ContactResolver
	leads        LeadWriter
	appointments AppointmentWriter
	events       EventWriter
	stages       StageWriter
	limiter      ratelimit.Limiter
	resolver     appointments.TimingResolver
	hooks        PostCommitHooks
	val          *validator.Validator
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
	val := d.Validator
	if val == nil {
		val = validator.New()
	}
	return &Service{
		tx:           d.Tx,
		contacts:     d.Contacts,
		leads:        d.Leads,
		appointments: d.Appointments,
		events:       d.Events,
		stages:       d.Stages,
		limiter:      d.Limiter,
		resolver:     d.Resolver,
		hooks:        d.Hooks,
		val:          val,
		tokens:       tokens,
		log:          d.Log,
		now:          time.Now,
	}
}

// SubmitLead validates and stores one submission. Contact, property, lead,
// the optional estimate appointment and exactly one outbox event commit
// together or not at all.
func (s *Service) SubmitLead(ctx context.Context, clientIP string, req SubmitLeadRequest) (SubmitLeadResult, error) {
	const op = "intake.SubmitLead"

	if strings.TrimSpace(req.Website) != "" {
		s.log.Info("honeypot submission ignored", "client_ip", clientIP)
		return SubmitLeadResult{Ignored: true}, nil
	}

	if err := s.checkRate(ctx, clientIP); err != nil {
		return SubmitLeadResult{}, err
	}

	req = clean(req)
	if len(req.Services) == 0 {
		return SubmitLeadResult{}, apperr.Validation("at least one service is required").WithReason(apperr.ReasonServicesRequired)
	}

	// Identity and address are rejected here so nothing is written for a
	// submission that cannot succeed.
	identity := contacts.Identity{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Source:    "web_form",
	}
	address := contacts.Address{
		Line1:      req.AddressLine1,
		Line2:      req.AddressLine2,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Lat:        req.Latitude,
		Lng:        req.Longitude,
		Gated:      req.Gated,
	}
	if err := s.contacts.CheckIdentity(identity); err != nil {
		return SubmitLeadResult{}, err
	}
	if _, err := contacts.NormalizeAddress(address); err != nil {
		return SubmitLeadResult{}, err
	}
	if err := s.val.Check(req); err != nil {
		return SubmitLeadResult{}, err
	}

	var timing appointments.Timing
	if req.RequestEstimate {
		t, err := s.resolver.ResolveTiming(req.PreferredDate, req.PreferredWindow)
		if err != nil {
			return SubmitLeadResult{}, err
		}
		timing = t
	}

	snapshot, err := json.Marshal(req)
	if err != nil {
		return SubmitLeadResult{}, apperr.Wrap(apperr.KindInternal, "could not encode form", err).WithOp(op)
	}

	var rescheduleToken string
	if req.RequestEstimate {
		if rescheduleToken, err = s.tokens(); err != nil {
			return SubmitLeadResult{}, apperr.Wrap(apperr.KindInternal, "could not generate token", err).WithOp(op)
		}
	}

	now := s.now()
	attribution := leads.Attribution{
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		Referrer:    req.Referrer,
	}

	var result SubmitLeadResult
	err = s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		contact, err := s.contacts.UpsertContact(ctx, q, identity)
		if err != nil {
			return err
		}
		property, err := s.contacts.UpsertProperty(ctx, q, contact.ID, address)
		if err != nil {
			return err
		}

		lead := leads.Lead{
			ID:           uuid.New(),
			ContactID:    contact.ID,
			PropertyID:   property.ID,
			Services:     req.Services,
			Notes:        req.Notes,
			Status:       leads.StatusNew,
			Attribution:  attribution,
			FormSnapshot: snapshot,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if req.RequestEstimate {
			lead.Status = leads.StatusScheduled
		}
		if err := s.leads.Insert(ctx, q, lead); err != nil {
			return err
		}

		result = SubmitLeadResult{LeadID: lead.ID, ContactID: contact.ID, PropertyID: property.ID}

		if !req.RequestEstimate {
			_, err = s.events.Insert(ctx, q, outbox.TypeLeadCreated, outbox.LeadCreatedPayload{
				LeadID:     lead.ID,
				ContactID:  contact.ID,
				PropertyID: property.ID,
				Services:   lead.Services,
			})
			return err
		}

		appt := appointments.Appointment{
			ID:              uuid.New(),
			ContactID:       contact.ID,
			PropertyID:      property.ID,
			LeadID:          &lead.ID,
			Type:            appointments.TypeEstimate,
			StartAt:         timing.StartAt,
			DurationMinutes: timing.DurationMinutes,
			Status:          appointments.StatusRequested,
			RescheduleToken: rescheduleToken,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.appointments.Insert(ctx, q, appt); err != nil {
			return err
		}
		result.Appointment = &AppointmentSummary{
			ID:              appt.ID,
			Status:          appt.Status,
			RescheduleToken: appt.RescheduleToken,
			StartAt:         appt.StartAt,
			DurationMinutes: appt.DurationMinutes,
		}

		_, err = s.events.Insert(ctx, q, outbox.TypeEstimateRequested, outbox.EstimateRequestedPayload{
			LeadID:          lead.ID,
			AppointmentID:   appt.ID,
			RescheduleToken: appt.RescheduleToken,
			Services:        lead.Services,
			StartAt:         appt.StartAt,
			DurationMinutes: appt.DurationMinutes,
			Window:          req.PreferredWindow,
		})
		return err
	})
	if err != nil {
		return SubmitLeadResult{}, s.translate(op, err)
	}

	s.afterCommit(ctx, result, attribution, req.Services)
	return result, nil
}

func (s *Service) checkRate(ctx context.Context, clientIP string) error {
	if strings.TrimSpace(clientIP) == "" {
		return apperr.RateLimited("client could not be identified")
	}
	allowed, err := s.limiter.Allow(ctx, clientIP)
	switch {
	case errors.Is(err, ratelimit.ErrEmptyKey):
		return apperr.RateLimited("client could not be identified")
	case err != nil:
		// Fail open.
		s.log.WithContext(ctx).Warn("rate limiter unavailable", "error", err)
		return nil
	case !allowed:
		s.log.RateLimitExceeded(clientIP, "/api/v1/public/leads")
		return apperr.RateLimited("too many submissions, try again in a minute")
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, result SubmitLeadResult, attribution leads.Attribution, services []string) {
	stage := contacts.StageNewLead
	if result.Appointment != nil {
		stage = contacts.StageEstimateBooked
	}
	if err := s.tx.WithTx(ctx, func(ctx context.Context, q db.DBTX) error {
		return s.stages.UpsertStage(ctx, q, result.ContactID, stage)
	}); err != nil {
		s.log.HookFailed("crm.stage", result.LeadID.String(), err)
	}

	if s.hooks == nil {
		return
	}
	if !attribution.Empty() {
		conv := tracking.Conversion{
			LeadID:      result.LeadID,
			UTMSource:   attribution.UTMSource,
			UTMMedium:   attribution.UTMMedium,
			UTMCampaign: attribution.UTMCampaign,
			Referrer:    attribution.Referrer,
			Services:    services,
			OccurredAt:  s.now(),
		}
		if err := s.hooks.EnqueueConversionPing(ctx, conv); err != nil {
			s.log.HookFailed("tracking.conversion", result.LeadID.String(), err)
		}
	}
	if result.Appointment != nil {
		if err := s.hooks.EnqueueCalendarSync(ctx, result.Appointment.ID); err != nil {
			s.log.HookFailed("calendar.create_event", result.Appointment.ID.String(), err)
		}
	}
}

// clean trims and strips markup from every free-text field and dedupes the
// service list in submission order.
func clean(req SubmitLeadRequest) SubmitLeadRequest {
	req.FirstName = sanitize.Line(req.FirstName, 100)
	req.LastName = sanitize.Line(req.LastName, 100)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.AddressLine1 = sanitize.Line(req.AddressLine1, 200)
	req.AddressLine2 = sanitize.Line(req.AddressLine2, 200)
	req.City = sanitize.Line(req.City, 100)
	req.State = strings.ToUpper(sanitize.Line(req.State, 2))
	req.PostalCode = sanitize.Line(req.PostalCode, 10)
	req.Notes = sanitize.Text(req.Notes, 4000)
	req.PreferredWindow = strings.ToLower(strings.TrimSpace(req.PreferredWindow))
	req.UTMSource = sanitize.Line(req.UTMSource, 100)
	req.UTMMedium = sanitize.Line(req.UTMMedium, 100)
	req.UTMCampaign = sanitize.Line(req.UTMCampaign, 100)
	req.Referrer = sanitize.Line(req.Referrer, 500)

	seen := make(map[string]bool, len(req.Services))
	services := make([]string, 0, len(req.Services))
	for _, id := range req.Services {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		services = append(services, id)
	}
	req.Services = services
	return req
}

func (s *Service) translate(op string, err error) error {
	var domainErr *apperr.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, "a concurrent submission created the same record, please retry", err).
			WithReason(apperr.ReasonDuplicate).WithOp(op)
	default:
		s.log.DatabaseError(op, err)
		return apperr.Wrap(apperr.KindInternal, "could not store submission", err).WithOp(op)
	}
}
