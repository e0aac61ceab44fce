// Package notification turns outbox events into customer and staff messages.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Confirmation reasons.
const (
	ReasonRequested   = "requested"
	ReasonRescheduled = "rescheduled"
	ReasonConfirmed   = "confirmed"
	ReasonJob         = "job"
)

// EstimatePayload is everything a visit message needs, rebuilt from current
// state with the event's override fields applied on top.
type EstimatePayload struct {
	AppointmentID   uuid.UUID
	AppointmentType string
	CustomerName    string
	Email           string
	Phone           string
	Address         string
	Services        []string
	StartAt         *time.Time
	DurationMinutes int
	Window          string
	RescheduleURL   string
}

// QuoteLinkPayload is a quote ready for the customer to review.
type QuoteLinkPayload struct {
	QuoteID         uuid.UUID
	CustomerName    string
	Email           string
	TotalCents      int64
	DepositDueCents int64
	ExpiresAt       *time.Time
	URL             string
}

// StaffAlert is an internal heads-up.
type StaffAlert struct {
	Subject string
	Lines   []string
}

// Notifier delivers messages. Implementations return an error on delivery
// failure and never panic.
type Notifier interface {
	SendEstimateConfirmation(ctx context.Context, p EstimatePayload, reason string) error
	SendReminder(ctx context.Context, p EstimatePayload, window string) error
	SendStaffAlert(ctx context.Context, alert StaffAlert) error
	SendQuoteLink(ctx context.Context, p QuoteLinkPayload) error
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func formatStart(start *time.Time, loc *time.Location, window string) string {
	if start == nil {
		if window != "" && window != "anytime" {
			return "to be scheduled (" + window + ")"
		}
		return "to be scheduled"
	}
	if loc == nil {
		loc = time.UTC
	}
	return start.In(loc).Format("Monday, January 2 at 3:04 PM")
}
