// Package outbox records business events in the same transaction as the
// change that caused them and dispatches them to type-keyed handlers.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeLeadCreated          = "lead.created"
	TypeEstimateRequested    = "estimate.requested"
	TypeEstimateRescheduled  = "estimate.rescheduled"
	TypeQuoteCreated         = "quote.created"
	TypeQuoteSent            = "quote.sent"
	TypeQuoteDecided         = "quote.decided"
	TypeJobScheduled         = "job.scheduled"
	TypeAppointmentCanceled  = "appointment.canceled"
	TypeAppointmentConfirmed = "appointment.confirmed"
)

// ErrMalformedPayload is returned by Decode when the payload does not match
// the schema for the event type.
var ErrMalformedPayload = errors.New("malformed outbox payload")

// Event is a durable "something happened" record. ClaimToken identifies the
// claim that handed the event to a dispatcher.
type Event struct {
	ID          uuid.UUID
	Type        string
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
	ClaimToken  uuid.UUID
}

// LeadCreatedPayload is emitted for leads without an estimate visit.
type LeadCreatedPayload struct {
	LeadID     uuid.UUID `json:"leadId"`
	ContactID  uuid.UUID `json:"contactId"`
	PropertyID uuid.UUID `json:"propertyId"`
	Services   []string  `json:"services"`
}

// EstimateRequestedPayload is emitted when a lead asks for an in-person estimate.
type EstimateRequestedPayload struct {
	LeadID          uuid.UUID  `json:"leadId"`
	AppointmentID   uuid.UUID  `json:"appointmentId"`
	RescheduleToken string     `json:"rescheduleToken"`
	Services        []string   `json:"services"`
	StartAt         *time.Time `json:"startAt,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	Window          string     `json:"window,omitempty"`
}

// EstimateRescheduledPayload is emitted when a customer moves an appointment.
// PreviousCalendarEventID names the provider event for the old time, which
// is no longer referenced by the appointment.
type EstimateRescheduledPayload struct {
	AppointmentID           uuid.UUID  `json:"appointmentId"`
	RescheduleToken         string     `json:"rescheduleToken"`
	PreviousStartAt         *time.Time `json:"previousStartAt,omitempty"`
	StartAt                 *time.Time `json:"startAt,omitempty"`
	Window                  string     `json:"window,omitempty"`
	PreviousCalendarEventID string     `json:"previousCalendarEventId,omitempty"`
}

// QuoteCreatedPayload is emitted when a quote is priced and stored.
type QuoteCreatedPayload struct {
	QuoteID    uuid.UUID  `json:"quoteId"`
	ContactID  uuid.UUID  `json:"contactId"`
	LeadID     *uuid.UUID `json:"leadId,omitempty"`
	TotalCents int64      `json:"totalCents"`
}

// QuoteSentPayload is emitted when a quote link goes to the customer.
type QuoteSentPayload struct {
	QuoteID    uuid.UUID `json:"quoteId"`
	ShareToken string    `json:"shareToken"`
}

// QuoteDecidedPayload is emitted when a quote is accepted or declined.
type QuoteDecidedPayload struct {
	QuoteID  uuid.UUID `json:"quoteId"`
	Decision string    `json:"decision"`
	Actor    string    `json:"actor"`
}

// JobScheduledPayload is emitted when an accepted quote becomes a job.
type JobScheduledPayload struct {
	QuoteID         uuid.UUID `json:"quoteId"`
	AppointmentID   uuid.UUID `json:"appointmentId"`
	RescheduleToken string    `json:"rescheduleToken"`
	StartAt         time.Time `json:"startAt"`
}

// AppointmentCanceledPayload carries the calendar reference the cancel cleared.
type AppointmentCanceledPayload struct {
	AppointmentID   uuid.UUID `json:"appointmentId"`
	CalendarEventID string    `json:"calendarEventId,omitempty"`
}

// AppointmentConfirmedPayload is emitted when staff confirm a visit.
type AppointmentConfirmedPayload struct {
	AppointmentID   uuid.UUID `json:"appointmentId"`
	RescheduleToken string    `json:"rescheduleToken"`
}

// Decode unmarshals e's payload into T and rejects payloads that are not
// JSON objects.
func Decode[T any](e Event) (T, error) {
	var out T
	if len(e.Payload) == 0 {
		return out, fmt.Errorf("%w: %s has an empty payload", ErrMalformedPayload, e.Type)
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, e.Type, err)
	}
	return out, nil
}
