// Package contacts resolves customers and the properties they own.
//
// Every operation here runs on a caller-supplied db.DBTX; the package never
// opens a transaction of its own.
package contacts

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// CRM stages written as the contact's single "current stage" row.
const (
	StageNewLead        = "new_lead"
	StageEstimateBooked = "estimate_booked"
	StageEstimateDone   = "estimate_completed"
	StageQuoted         = "quoted"
	StageJobScheduled   = "job_scheduled"
	StageJobDone        = "job_completed"
	StageNoShow         = "no_show"
	StageCanceled       = "canceled"
)

// Contact is a customer identity.
type Contact struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     *string
	PhoneRaw  *string
	PhoneE164 *string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Property is a serviceable address owned by one contact at a time.
type Property struct {
	ID           uuid.UUID
	ContactID    uuid.UUID
	AddressLine1 string
	AddressLine2 *string
	City         string
	State        string
	PostalCode   string
	Lat          *float64
	Lng          *float64
	Gated        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCoordinates reports whether both lat and lng are known.
func (p Property) HasCoordinates() bool {
	return p.Lat != nil && p.Lng != nil
}

// OneLine renders the address on a single line.
func (p Property) OneLine() string {
	line := p.AddressLine1
	if p.AddressLine2 != nil && *p.AddressLine2 != "" {
		line += ", " + *p.AddressLine2
	}
	return line + ", " + p.City + ", " + p.State + " " + p.PostalCode
}

// Identity is the person half of a submission.
type Identity struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Source    string
}

// Address is the property half of a submission.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Lat        *float64
	Lng        *float64
	Gated      bool
}
