// Package leads persists customer work requests.
package leads

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no lead matches.
var ErrNotFound = errors.New("lead not found")

// Lead statuses. A lead moves forward as quoting and scheduling happen.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQuoted    = "quoted"
	StatusScheduled = "scheduled"
)

// Attribution carries marketing source fields from the form.
type Attribution struct {
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
}

// Empty reports whether no attribution field is set.
func (a Attribution) Empty() bool {
	return a == Attribution{}
}

// Lead is one customer request for work.
type Lead struct {
	ID           uuid.UUID
	ContactID    uuid.UUID
	PropertyID   uuid.UUID
	Services     []string
	Notes        string
	Status       string
	Attribution  Attribution
	FormSnapshot json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
