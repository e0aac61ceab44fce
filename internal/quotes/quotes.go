// Package quotes stores priced proposals and turns accepted ones into jobs.
package quotes

import (
	"errors"
	"time"

	"fieldops_backend/internal/pricing"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no quote matches.
var ErrNotFound = errors.New("quote not found")

// Quote statuses.
const (
	StatusPending  = "pending"
	StatusSent     = "sent"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

// Decision actors.
const (
	ActorCustomer = "customer"
	ActorStaff    = "staff"
)

// DefaultTravelBufferMinutes pads job appointments for driving time.
const DefaultTravelBufferMinutes = 30

// Quote is a priced proposal. Pricing fields never change after creation.
type Quote struct {
	ID                 uuid.UUID          `json:"id"`
	ContactID          uuid.UUID          `json:"contactId"`
	PropertyID         uuid.UUID          `json:"propertyId"`
	LeadID             *uuid.UUID         `json:"leadId,omitempty"`
	Status             string             `json:"status"`
	Services           []string           `json:"services"`
	AddOns             []string           `json:"addOns"`
	ZoneID             string             `json:"zoneId"`
	ServicesTotalCents int64              `json:"servicesTotalCents"`
	AddOnsTotalCents   int64              `json:"addOnsTotalCents"`
	TravelFeeCents     int64              `json:"travelFeeCents"`
	DiscountCents      int64              `json:"discountCents"`
	SubtotalCents      int64              `json:"subtotalCents"`
	TotalCents         int64              `json:"totalCents"`
	DepositRate        float64            `json:"depositRate"`
	DepositDueCents    int64              `json:"depositDueCents"`
	BalanceDueCents    int64              `json:"balanceDueCents"`
	LineItems          []pricing.LineItem `json:"lineItems"`
	ShareToken         string             `json:"-"`
	ExpiresAt          *time.Time         `json:"expiresAt,omitempty"`
	SentAt             *time.Time         `json:"sentAt,omitempty"`
	DecisionAt         *time.Time         `json:"decisionAt,omitempty"`
	DecisionNotes      *string            `json:"decisionNotes,omitempty"`
	JobAppointmentID   *uuid.UUID         `json:"jobAppointmentId,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Expired reports whether the share link has lapsed at now.
func (q Quote) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

// applyBreakdown copies the priced fields onto q.
func (q *Quote) applyBreakdown(b pricing.Breakdown) {
	q.ZoneID = b.ZoneID
	q.ServicesTotalCents = b.ServicesTotalCents
	q.AddOnsTotalCents = b.AddOnsTotalCents
	q.TravelFeeCents = b.TravelFeeCents
	q.DiscountCents = b.DiscountCents
	q.SubtotalCents = b.SubtotalCents
	q.TotalCents = b.TotalCents
	q.DepositRate = b.DepositRate
	q.DepositDueCents = b.DepositDueCents
	q.BalanceDueCents = b.BalanceDueCents
	q.LineItems = b.LineItems
}
