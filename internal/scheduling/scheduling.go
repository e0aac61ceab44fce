// Package scheduling proposes visit windows for accepted quotes. It reads
// quotes and appointments but never writes them.
package scheduling

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxSuggestions is the most windows a single call returns.
	MaxSuggestions = 3
	// Horizon is how far ahead existing appointments are considered.
	Horizon = 14 * 24 * time.Hour
	// MaxCandidates caps the appointments loaded for one call.
	MaxCandidates = 120

	// SourceRanker marks windows proposed by the external ranker.
	SourceRanker = "ranker"
	// SourceHeuristic marks windows produced by the deterministic fallback.
	SourceHeuristic = "heuristic"

	earthRadiusMiles = 3958.8
	fallbackHour     = 13
	fallbackLead     = 24 * time.Hour
	defaultBuffer    = 30
)

// Candidate is an upcoming appointment considered as an anchor for a new
// visit. DistanceMiles is nil when either end lacks coordinates.
type Candidate struct {
	AppointmentID       uuid.UUID `json:"appointmentId"`
	Type                string    `json:"type"`
	Status              string    `json:"status"`
	StartAt             time.Time `json:"startAt"`
	DurationMinutes     int       `json:"durationMinutes"`
	TravelBufferMinutes int       `json:"travelBufferMinutes"`
	Address             string    `json:"address"`
	Lat                 *float64  `json:"-"`
	Lng                 *float64  `json:"-"`
	DistanceMiles       *float64  `json:"distanceMiles,omitempty"`
}

// EndAt returns when the candidate visit finishes.
func (c Candidate) EndAt() time.Time {
	return c.StartAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// Suggestion is one proposed window.
type Suggestion struct {
	StartAt           time.Time  `json:"startAt"`
	EndAt             time.Time  `json:"endAt"`
	Reason            string     `json:"reason"`
	NearAppointmentID *uuid.UUID `json:"nearAppointmentId,omitempty"`
	DistanceMiles     *float64   `json:"distanceMiles,omitempty"`
}

// Meta tells callers how the suggestions were produced.
type Meta struct {
	LocationMissing bool   `json:"locationMissing"`
	Fallback        bool   `json:"fallback"`
	Source          string `json:"source"`
	DurationMinutes int    `json:"durationMinutes"`
	CandidateCount  int    `json:"candidateCount"`
}

// Result is the response of SuggestWindows.
type Result struct {
	QuoteID     uuid.UUID    `json:"quoteId"`
	Suggestions []Suggestion `json:"suggestions"`
	Meta        Meta         `json:"meta"`
}

// HaversineMiles returns the great-circle distance between two points.
func HaversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
