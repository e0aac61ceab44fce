package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldops_backend/platform/logger"
)

// Outcome is the recorded result of handling one event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeError     Outcome = "error"
)

const (
	DefaultBatchLimit     = 25
	MaxBatchLimit         = 500
	DefaultLease          = 2 * time.Minute
	defaultHandlerTimeout = 30 * time.Second
)

// Handler handles one event type. It returns OutcomeProcessed or
// OutcomeSkipped; a returned error counts the event as an error.
type Handler func(ctx context.Context, e Event) (Outcome, error)

// Typed adapts a handler for one payload schema. Payloads that fail to
// decode are skipped.
func Typed[T any](fn func(ctx context.Context, e Event, payload T) (Outcome, error)) Handler {
	return func(ctx context.Context, e Event) (Outcome, error) {
		payload, err := Decode[T](e)
		if err != nil {
			return OutcomeSkipped, nil
		}
		return fn(ctx, e, payload)
	}
}

// Registry maps event types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to eventType, replacing any previous handler.
func (r *Registry) Register(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

func (r *Registry) lookup(eventType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

// Store is what the dispatcher needs from persistence. Renew and
// MarkProcessed report false once another claim has taken the event over.
type Store interface {
	Claim(ctx context.Context, limit int, lease time.Duration) ([]Event, error)
	Renew(ctx context.Context, e Event, lease time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, e Event, outcome Outcome, lastError string) (bool, error)
}

// BatchResult holds the counters of one ProcessBatch call.
type BatchResult struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Dispatcher drains unprocessed events. Every claimed event is marked
// processed whatever its handler did; failed events are not retried. The
// lease is renewed before each handler runs and the handler timeout stays
// below the lease, so a slow batch cannot hand its tail to a second
// dispatcher while it still intends to deliver it.
type Dispatcher struct {
	store          Store
	registry       *Registry
	log            *logger.Logger
	lease          time.Duration
	handlerTimeout time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store Store, registry *Registry, log *logger.Logger, lease time.Duration) *Dispatcher {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Dispatcher{
		store:          store,
		registry:       registry,
		log:            log,
		lease:          lease,
		handlerTimeout: handlerTimeoutFor(lease),
	}
}

func handlerTimeoutFor(lease time.Duration) time.Duration {
	if half := lease / 2; half < defaultHandlerTimeout {
		return half
	}
	return defaultHandlerTimeout
}

// ProcessBatch claims up to limit events in creation order, dispatches each
// by type and marks every one processed. Events whose lease was taken over
// by another dispatcher are left to it and not counted.
func (d *Dispatcher) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	if limit > MaxBatchLimit {
		limit = MaxBatchLimit
	}

	events, err := d.store.Claim(ctx, limit, d.lease)
	if err != nil {
		return BatchResult{}, fmt.Errorf("claim outbox events: %w", err)
	}

	var result BatchResult
	for _, evt := range events {
		held, err := d.store.Renew(ctx, evt, d.lease)
		if err != nil {
			d.log.DatabaseError("outbox.Renew", err)
			continue
		}
		if !held {
			d.log.Warn("outbox lease lost before dispatch", "event_id", evt.ID, "type", evt.Type)
			continue
		}

		result.Total++
		outcome, handleErr := d.handle(ctx, evt)

		var lastError string
		switch outcome {
		case OutcomeProcessed:
			result.Processed++
		case OutcomeSkipped:
			result.Skipped++
		default:
			result.Errors++
			if handleErr != nil {
				lastError = handleErr.Error()
			}
			d.log.Warn("outbox handler failed", "event_id", evt.ID, "type", evt.Type, "error", lastError)
		}

		marked, err := d.store.MarkProcessed(ctx, evt, outcome, lastError)
		if err != nil {
			d.log.DatabaseError("outbox.MarkProcessed", err)
		} else if !marked {
			d.log.Warn("outbox lease lost before mark", "event_id", evt.ID, "type", evt.Type)
		}
	}

	d.log.OutboxBatch(result.Total, result.Processed, result.Skipped, result.Errors)
	return result, nil
}

func (d *Dispatcher) handle(ctx context.Context, evt Event) (outcome Outcome, err error) {
	h, ok := d.registry.lookup(evt.Type)
	if !ok {
		return OutcomeSkipped, nil
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeError
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	outcome, err = h(hctx, evt)
	if err != nil {
		return OutcomeError, err
	}
	if outcome != OutcomeProcessed && outcome != OutcomeSkipped {
		return OutcomeError, errors.New("handler returned unknown outcome " + string(outcome))
	}
	return outcome, nil
}
