// Package intake turns public form submissions into contacts, properties,
// leads and estimate appointments in a single transaction.
package intake

import (
	"time"

	"github.com/google/uuid"
)

// SubmitLeadRequest is the public lead form.
type SubmitLeadRequest struct {
	FirstName    string   `json:"firstName" validate:"max=100"`
	LastName     string   `json:"lastName" validate:"max=100"`
	Email        string   `json:"email" validate:"omitempty,email,max=254"`
	Phone        string   `json:"phone" validate:"required,max=32"`
	AddressLine1 string   `json:"addressLine1" validate:"required,notblank,max=200"`
	AddressLine2 string   `json:"addressLine2" validate:"max=200"`
	City         string   `json:"city" validate:"required,notblank,max=100"`
	State        string   `json:"state" validate:"required,statecode"`
	PostalCode   string   `json:"postalCode" validate:"required,notblank,max=10"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,longitude"`
	Gated        bool     `json:"gated"`
	Services     []string `json:"services" validate:"max=10,dive,max=64"`
	Notes        string   `json:"notes" validate:"max=4000"`

	RequestEstimate bool   `json:"requestEstimate"`
	PreferredDate   string `json:"preferredDate" validate:"omitempty,datetime=2006-01-02"`
	PreferredWindow string `json:"preferredWindow" validate:"omitempty,oneof=morning midday afternoon evening anytime"`

	UTMSource   string `json:"utmSource" validate:"max=100"`
	UTMMedium   string `json:"utmMedium" validate:"max=100"`
	UTMCampaign string `json:"utmCampaign" validate:"max=100"`
	Referrer    string `json:"referrer" validate:"max=500"`

	// Website is the honeypot. Humans never see the field.
	Website string `json:"website"`
}

// AppointmentSummary is returned when the lead booked an estimate visit.
type AppointmentSummary struct {
	ID              uuid.UUID  `json:"id"`
	Status          string     `json:"status"`
	RescheduleToken string     `json:"rescheduleToken"`
	StartAt         *time.Time `json:"startAt,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
}

// SubmitLeadResult is the outcome of SubmitLead. Ignored is set for honeypot
// hits, in which case nothing was written.
type SubmitLeadResult struct {
	Ignored     bool                `json:"-"`
	LeadID      uuid.UUID           `json:"leadId"`
	ContactID   uuid.UUID           `json:"contactId"`
	PropertyID  uuid.UUID           `json:"propertyId"`
	Appointment *AppointmentSummary `json:"appointment,omitempty"`
}
