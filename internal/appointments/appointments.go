// Package appointments owns scheduled visits and their status lifecycle.
package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no appointment matches.
var ErrNotFound = errors.New("appointment not found")

// Appointment types.
const (
	TypeEstimate = "estimate"
	TypeJob      = "job"
)

// Appointment statuses.
const (
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
	StatusCanceled  = "canceled"
)

var transitions = map[string]map[string]bool{
	StatusRequested: {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusCompleted: true, StatusCanceled: true, StatusNoShow: true},
	StatusNoShow:    {StatusRequested: true},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsTerminal reports whether no further change is possible from status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCanceled
}

// Appointment is a scheduled visit.
type Appointment struct {
	ID                  uuid.UUID  `json:"id"`
	ContactID           uuid.UUID  `json:"contactId"`
	PropertyID          uuid.UUID  `json:"propertyId"`
	LeadID              *uuid.UUID `json:"leadId,omitempty"`
	Type                string     `json:"type"`
	StartAt             *time.Time `json:"startAt,omitempty"`
	DurationMinutes     int        `json:"durationMinutes"`
	TravelBufferMinutes int        `json:"travelBufferMinutes"`
	Status              string     `json:"status"`
	RescheduleToken     string     `json:"-"`
	CalendarEventID     *string    `json:"-"`
	Notes               string     `json:"notes,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// EndAt returns the visit end, or nil while unscheduled.
func (a Appointment) EndAt() *time.Time {
	if a.StartAt == nil {
		return nil
	}
	end := a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
	return &end
}
