package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fieldops_backend/internal/contacts"
	"fieldops_backend/internal/pricing"
	"fieldops_backend/internal/quotes"
	"fieldops_backend/platform/apperr"
	"fieldops_backend/platform/db"
	"fieldops_backend/platform/logger"
	"fieldops_backend/platform/sanitize"

	"github.com/google/uuid"
)

const maxReasonRunes = 280

// QuoteReader loads quotes.
type QuoteReader interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID, forUpdate bool) (quotes.Quote, error)
}

// PropertyReader loads the quote's property.
type PropertyReader interface {
	GetProperty(ctx context.Context, q db.DBTX, id uuid.UUID) (contacts.Property, error)
}

// CalendarReader lists upcoming appointments.
type CalendarReader interface {
	Upcoming(ctx context.Context, q db.DBTX, from, to time.Time, limit int) ([]Candidate, error)
}

// RankRequest is what an external ranker sees.
type RankRequest struct {
	TargetAddress   string
	DurationMinutes int
	Now             time.Time
	Location        *time.Location
	Candidates      []Candidate
}

// RankedWindow is a raw ranker answer. StartAt must parse as RFC 3339.
type RankedWindow struct {
	StartAt string `json:"startAt"`
	Reason  string `json:"reason"`
}

// Ranker proposes windows near existing appointments. A nil result, an empty
// result or an error all fall back to the heuristic.
type Ranker interface {
	RankWindows(ctx context.Context, req RankRequest) ([]RankedWindow, error)
}

// Deps groups the Engine collaborators. Ranker is optional.
type Deps struct {
	DB            db.DBTX
	Quotes        QuoteReader
	Properties    PropertyReader
	Calendar      CalendarReader
	Catalog       *pricing.Catalog
	Ranker        Ranker
	RankerTimeout time.Duration
	Location      *time.Location
	Log           *logger.Logger
}

// Engine produces window suggestions.
type Engine struct {
	db            db.DBTX
	quotes        QuoteReader
	properties    PropertyReader
	calendar      CalendarReader
	catalog       *pricing.Catalog
	ranker        Ranker
	rankerTimeout time.Duration
	loc           *time.Location
	log           *logger.Logger
	now           func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(d Deps) *Engine {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := d.RankerTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Engine{
		db:            d.DB,
		quotes:        d.Quotes,
		properties:    d.Properties,
		calendar:      d.Calendar,
		catalog:       d.Catalog,
		ranker:        d.Ranker,
		rankerTimeout: timeout,
		loc:           loc,
		log:           d.Log,
		now:           time.Now,
	}
}

// SuggestWindows proposes up to three windows for an accepted quote.
func (e *Engine) SuggestWindows(ctx context.Context, quoteID uuid.UUID) (Result, error) {
	quote, err := e.quotes.GetByID(ctx, e.db, quoteID, false)
	if errors.Is(err, quotes.ErrNotFound) {
		return Result{}, apperr.NotFound("quote not found")
	}
	if err != nil {
		e.log.DatabaseError("scheduling.GetQuote", err)
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to load quote", err)
	}
	if quote.Status != quotes.StatusAccepted {
		return Result{}, apperr.Conflict("quote is not accepted").WithReason(apperr.ReasonQuoteNotAccepted)
	}

	var target *contacts.Property
	property, err := e.properties.GetProperty(ctx, e.db, quote.PropertyID)
	switch {
	case err == nil:
		target = &property
	case errors.Is(err, contacts.ErrNotFound):
	default:
		e.log.DatabaseError("scheduling.GetProperty", err)
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to load property", err)
	}
	hasLocation := target != nil && target.HasCoordinates()

	duration := e.catalog.EstimateDurationMinutes(quote.Services, quote.AddOns)
	now := e.now()

	candidates, err := e.calendar.Upcoming(ctx, e.db, now, now.Add(Horizon), MaxCandidates)
	if err != nil {
		e.log.DatabaseError("scheduling.Upcoming", err)
		return Result{}, apperr.Wrap(apperr.KindInternal, "failed to load appointments", err)
	}
	if hasLocation {
		annotateDistances(candidates, *target.Lat, *target.Lng)
	}

	result := Result{
		QuoteID: quote.ID,
		Meta: Meta{
			LocationMissing: !hasLocation,
			DurationMinutes: duration,
			CandidateCount:  len(candidates),
		},
	}

	if hasLocation && e.ranker != nil {
		ranked := e.rank(ctx, RankRequest{
			TargetAddress:   target.OneLine(),
			DurationMinutes: duration,
			Now:             now,
			Location:        e.loc,
			Candidates:      candidates,
		})
		if len(ranked) > 0 {
			result.Suggestions = ranked
			result.Meta.Source = SourceRanker
			return result, nil
		}
	}

	result.Suggestions = heuristicWindows(now, e.loc, duration, candidates)
	result.Meta.Fallback = true
	result.Meta.Source = SourceHeuristic
	return result, nil
}

func (e *Engine) rank(ctx context.Context, req RankRequest) []Suggestion {
	rctx, cancel := context.WithTimeout(ctx, e.rankerTimeout)
	defer cancel()

	windows, err := e.ranker.RankWindows(rctx, req)
	if err != nil {
		e.log.Warn("window ranker failed, using heuristic", "error", err)
		return nil
	}

	out := make([]Suggestion, 0, MaxSuggestions)
	for _, w := range windows {
		if len(out) == MaxSuggestions {
			break
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(w.StartAt))
		if err != nil || !start.After(req.Now) {
			continue
		}
		out = append(out, Suggestion{
			StartAt: start,
			EndAt:   start.Add(time.Duration(req.DurationMinutes) * time.Minute),
			Reason:  sanitize.Line(w.Reason, maxReasonRunes),
		})
	}
	return out
}

func annotateDistances(candidates []Candidate, lat, lng float64) {
	for i := range candidates {
		c := &candidates[i]
		if c.Lat == nil || c.Lng == nil {
			continue
		}
		d := HaversineMiles(lat, lng, *c.Lat, *c.Lng)
		c.DistanceMiles = &d
	}
}

// heuristicWindows takes at most one slot per calendar day right after the
// nearest appointments, then fills up with afternoon slots from 24h out.
func heuristicWindows(now time.Time, loc *time.Location, durationMinutes int, candidates []Candidate) []Suggestion {
	length := time.Duration(durationMinutes) * time.Minute

	nearby := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.DistanceMiles != nil {
			nearby = append(nearby, c)
		}
	}
	sort.SliceStable(nearby, func(i, j int) bool {
		if *nearby[i].DistanceMiles != *nearby[j].DistanceMiles {
			return *nearby[i].DistanceMiles < *nearby[j].DistanceMiles
		}
		return nearby[i].StartAt.Before(nearby[j].StartAt)
	})

	used := make(map[string]bool)
	out := make([]Suggestion, 0, MaxSuggestions)
	for _, c := range nearby {
		if len(out) == MaxSuggestions {
			break
		}
		buffer := c.TravelBufferMinutes
		if buffer <= 0 {
			buffer = defaultBuffer
		}
		start := c.EndAt().Add(time.Duration(buffer) * time.Minute).In(loc)
		if !start.After(now) {
			continue
		}
		day := start.Format(time.DateOnly)
		if used[day] {
			continue
		}
		used[day] = true

		id := c.AppointmentID
		distance := *c.DistanceMiles
		out = append(out, Suggestion{
			StartAt:           start,
			EndAt:             start.Add(length),
			Reason:            fmt.Sprintf("Right after a visit %.1f miles away", distance),
			NearAppointmentID: &id,
			DistanceMiles:     &distance,
		})
	}

	earliest := now.Add(fallbackLead)
	first := earliest.In(loc)
	for i := 0; len(out) < MaxSuggestions && i <= int(Horizon/(24*time.Hour)); i++ {
		d := first.AddDate(0, 0, i)
		start := time.Date(d.Year(), d.Month(), d.Day(), fallbackHour, 0, 0, 0, loc)
		if start.Before(earliest) {
			continue
		}
		day := start.Format(time.DateOnly)
		if used[day] {
			continue
		}
		used[day] = true
		out = append(out, Suggestion{
			StartAt: start,
			EndAt:   start.Add(length),
			Reason:  "Open afternoon",
		})
	}
	return out
}
