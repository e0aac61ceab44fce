package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lease struct {
	token uuid.UUID
	until time.Time
}

type memoryStore struct {
	mu       sync.Mutex
	events   []Event
	outcomes map[uuid.UUID]Outcome
	errors   map[uuid.UUID]string
	claimed  map[uuid.UUID]lease
	now      time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		outcomes: map[uuid.UUID]Outcome{},
		errors:   map[uuid.UUID]string{},
		claimed:  map[uuid.UUID]lease{},
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) add(t *testing.T, eventType string, payload any) uuid.UUID {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	id := uuid.New()
	m.events = append(m.events, Event{ID: id, Type: eventType, Payload: data, CreatedAt: m.now.Add(time.Duration(len(m.events)) * time.Second)})
	return id
}

func (m *memoryStore) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memoryStore) Claim(_ context.Context, limit int, d time.Duration) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uuid.New()
	var out []Event
	for _, e := range m.events {
		if len(out) == limit {
			break
		}
		if e.ProcessedAt != nil {
			continue
		}
		if l, ok := m.claimed[e.ID]; ok && l.until.After(m.now) {
			continue
		}
		m.claimed[e.ID] = lease{token: token, until: m.now.Add(d)}
		e.ClaimToken = token
		out = append(out, e)
	}
	return out, nil
}

func (m *memoryStore) holds(e Event) (int, bool) {
	for i := range m.events {
		if m.events[i].ID == e.ID {
			l, ok := m.claimed[e.ID]
			return i, ok && l.token == e.ClaimToken && m.events[i].ProcessedAt == nil
		}
	}
	return -1, false
}

func (m *memoryStore) Renew(_ context.Context, e Event, d time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holds(e); !ok {
		return false, nil
	}
	m.claimed[e.ID] = lease{token: e.ClaimToken, until: m.now.Add(d)}
	return true, nil
}

func (m *memoryStore) MarkProcessed(_ context.Context, e Event, outcome Outcome, lastError string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.holds(e)
	if !ok {
		return false, nil
	}
	ts := m.now
	m.events[i].ProcessedAt = &ts
	m.outcomes[e.ID] = outcome
	m.errors[e.ID] = lastError
	m.claimed[e.ID] = lease{token: e.ClaimToken}
	return true, nil
}

func TestProcessBatch_MarksEveryEventWhateverTheOutcome(t *testing.T) {
	store := newMemoryStore()
	okID := store.add(t, TypeLeadCreated, LeadCreatedPayload{LeadID: uuid.New(), Services: []string{"house-wash"}})
	failID := store.add(t, TypeQuoteSent, QuoteSentPayload{QuoteID: uuid.New(), ShareToken: "abc"})
	panicID := store.add(t, TypeJobScheduled, JobScheduledPayload{QuoteID: uuid.New()})
	unknownID := store.add(t, "mystery.event", map[string]string{"x": "y"})

	reg := NewRegistry()
	var order []string
	reg.Register(TypeLeadCreated, Typed(func(_ context.Context, e Event, p LeadCreatedPayload) (Outcome, error) {
		order = append(order, e.Type)
		return OutcomeProcessed, nil
	}))
	reg.Register(TypeQuoteSent, func(_ context.Context, e Event) (Outcome, error) {
		order = append(order, e.Type)
		return OutcomeProcessed, errors.New("smtp down")
	})
	reg.Register(TypeJobScheduled, func(context.Context, Event) (Outcome, error) {
		panic("boom")
	})

	d := NewDispatcher(store, reg, logger.Nop(), time.Minute)
	got, err := d.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Total: 4, Processed: 1, Skipped: 1, Errors: 2}, got)
	assert.Equal(t, []string{TypeLeadCreated, TypeQuoteSent}, order)
	for _, e := range store.events {
		assert.NotNil(t, e.ProcessedAt, "event %s should be marked", e.Type)
	}
	assert.Equal(t, OutcomeProcessed, store.outcomes[okID])
	assert.Equal(t, OutcomeError, store.outcomes[failID])
	assert.Equal(t, "smtp down", store.errors[failID])
	assert.Equal(t, OutcomeError, store.outcomes[panicID])
	assert.Contains(t, store.errors[panicID], "boom")
	assert.Equal(t, OutcomeSkipped, store.outcomes[unknownID])

	again, err := d.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, again)
}

func TestProcessBatch_OldestFirstWithinLimit(t *testing.T) {
	store := newMemoryStore()
	first := store.add(t, TypeLeadCreated, LeadCreatedPayload{})
	second := store.add(t, TypeLeadCreated, LeadCreatedPayload{})
	third := store.add(t, TypeLeadCreated, LeadCreatedPayload{})

	var seen []uuid.UUID
	reg := NewRegistry()
	reg.Register(TypeLeadCreated, func(_ context.Context, e Event) (Outcome, error) {
		seen = append(seen, e.ID)
		return OutcomeProcessed, nil
	})

	d := NewDispatcher(store, reg, logger.Nop(), 0)
	got, err := d.ProcessBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, []uuid.UUID{first, second}, seen)

	got, err = d.ProcessBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, third, seen[2])
}

func TestProcessBatch_SlowBatchIsNotDeliveredTwice(t *testing.T) {
	store := newMemoryStore()
	ids := []uuid.UUID{
		store.add(t, TypeLeadCreated, LeadCreatedPayload{}),
		store.add(t, TypeLeadCreated, LeadCreatedPayload{}),
		store.add(t, TypeLeadCreated, LeadCreatedPayload{}),
	}

	var (
		mu         sync.Mutex
		deliveries = map[uuid.UUID]int{}
		second     *Dispatcher
		secondRun  BatchResult
	)
	reg := NewRegistry()
	reg.Register(TypeLeadCreated, func(ctx context.Context, e Event) (Outcome, error) {
		mu.Lock()
		deliveries[e.ID]++
		mu.Unlock()

		// Each handler takes 60% of the lease; the second dispatcher polls
		// while the first is on its second event.
		store.advance(60 * time.Millisecond)
		if e.ID == ids[1] && second != nil {
			d := second
			second = nil
			res, err := d.ProcessBatch(ctx, 10)
			require.NoError(t, err)
			secondRun = res
		}
		return OutcomeProcessed, nil
	})

	first := NewDispatcher(store, reg, logger.Nop(), 100*time.Millisecond)
	second = NewDispatcher(store, reg, logger.Nop(), 100*time.Millisecond)

	firstRun, err := first.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	for _, id := range ids {
		assert.Equal(t, 1, deliveries[id], "event %s", id)
		assert.Equal(t, OutcomeProcessed, store.outcomes[id])
	}
	assert.Equal(t, BatchResult{Total: 2, Processed: 2}, firstRun)
	assert.Equal(t, BatchResult{Total: 1, Processed: 1}, secondRun)
	for _, e := range store.events {
		assert.NotNil(t, e.ProcessedAt)
	}
}

func TestProcessBatch_MarkAfterLostLeaseIsDropped(t *testing.T) {
	store := newMemoryStore()
	id := store.add(t, TypeLeadCreated, LeadCreatedPayload{})

	var takeover Event
	reg := NewRegistry()
	reg.Register(TypeLeadCreated, func(ctx context.Context, e Event) (Outcome, error) {
		store.advance(2 * time.Minute)
		claimed, err := store.Claim(ctx, 1, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		takeover = claimed[0]
		return OutcomeError, errors.New("stale")
	})

	got, err := NewDispatcher(store, reg, logger.Nop(), time.Minute).ProcessBatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Total: 1, Errors: 1}, got)
	assert.Empty(t, store.outcomes, "the stale claim must not record an outcome")

	marked, err := store.MarkProcessed(context.Background(), takeover, OutcomeProcessed, "")
	require.NoError(t, err)
	assert.True(t, marked)
	assert.Equal(t, OutcomeProcessed, store.outcomes[id])
}

func TestHandlerTimeoutStaysBelowLease(t *testing.T) {
	assert.Equal(t, defaultHandlerTimeout, handlerTimeoutFor(DefaultLease))
	assert.Equal(t, 5*time.Second, handlerTimeoutFor(10*time.Second))
}

func TestTyped_MalformedPayloadIsSkipped(t *testing.T) {
	store := newMemoryStore()
	store.events = append(store.events, Event{ID: uuid.New(), Type: TypeQuoteSent, Payload: json.RawMessage(`"not an object"`), CreatedAt: store.now})
	store.events = append(store.events, Event{ID: uuid.New(), Type: TypeQuoteSent, Payload: nil, CreatedAt: store.now.Add(time.Second)})

	called := false
	reg := NewRegistry()
	reg.Register(TypeQuoteSent, Typed(func(context.Context, Event, QuoteSentPayload) (Outcome, error) {
		called = true
		return OutcomeProcessed, nil
	}))

	got, err := NewDispatcher(store, reg, logger.Nop(), time.Minute).ProcessBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, BatchResult{Total: 2, Skipped: 2}, got)
}

func TestDecode(t *testing.T) {
	id := uuid.New()
	e := Event{Type: TypeQuoteSent, Payload: json.RawMessage(`{"quoteId":"` + id.String() + `","shareToken":"t"}`)}
	p, err := Decode[QuoteSentPayload](e)
	require.NoError(t, err)
	assert.Equal(t, id, p.QuoteID)

	_, err = Decode[QuoteSentPayload](Event{Type: TypeQuoteSent, Payload: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
