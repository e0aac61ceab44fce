package appointments

import (
	"strings"
	"time"

	"fieldops_backend/platform/apperr"
)

// Preferred arrival windows.
const (
	WindowMorning   = "morning"
	WindowMidday    = "midday"
	WindowAfternoon = "afternoon"
	WindowEvening   = "evening"
	WindowAnytime   = "anytime"
)

// DefaultEstimateMinutes is the length of an on-site estimate visit.
const DefaultEstimateMinutes = 60

var windowStartHour = map[string]int{
	WindowMorning:   9,
	WindowMidday:    12,
	WindowAfternoon: 14,
	WindowEvening:   17,
}

// Timing is a resolved start and duration. StartAt is nil when the customer
// gave no concrete preference.
type Timing struct {
	StartAt         *time.Time
	DurationMinutes int
}

// TimingResolver turns a customer's preferred date and window into a
// concrete timing. Implementations must be pure.
type TimingResolver interface {
	ResolveTiming(preferredDate, window string) (Timing, error)
}

// DefaultTimingResolver maps windows to fixed local start hours.
type DefaultTimingResolver struct {
	Location        *time.Location
	DurationMinutes int
}

// NewDefaultTimingResolver creates a resolver for loc.
func NewDefaultTimingResolver(loc *time.Location) DefaultTimingResolver {
	if loc == nil {
		loc = time.UTC
	}
	return DefaultTimingResolver{Location: loc, DurationMinutes: DefaultEstimateMinutes}
}

// ResolveTiming implements TimingResolver. preferredDate is YYYY-MM-DD.
func (r DefaultTimingResolver) ResolveTiming(preferredDate, window string) (Timing, error) {
	timing := Timing{DurationMinutes: r.DurationMinutes}
	if timing.DurationMinutes <= 0 {
		timing.DurationMinutes = DefaultEstimateMinutes
	}

	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		window = WindowAnytime
	}
	hour, fixed := windowStartHour[window]
	if !fixed && window != WindowAnytime {
		return Timing{}, apperr.Validation("unknown preferred window " + window)
	}

	preferredDate = strings.TrimSpace(preferredDate)
	if preferredDate == "" || !fixed {
		return timing, nil
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", preferredDate, loc)
	if err != nil {
		return Timing{}, apperr.Validation("preferred date must be YYYY-MM-DD")
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
	timing.StartAt = &start
	return timing, nil
}
