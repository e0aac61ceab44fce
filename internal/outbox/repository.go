package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"fieldops_backend/platform/db"

	"github.com/google/uuid"
)

// Repository persists outbox events.
type Repository struct {
	pool db.DBTX
}

// NewRepository creates a Repository. pool is used by the dispatcher side
// (Claim, Renew, MarkProcessed); producers pass their own transaction to Insert.
func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool}
}

// Insert writes one event inside the caller's transaction.
func (r *Repository) Insert(ctx context.Context, q db.DBTX, eventType string, payload any) (uuid.UUID, error) {
	if eventType == "" {
		return uuid.Nil, fmt.Errorf("event type is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New()
	_, err = q.Exec(ctx, `
    INSERT INTO outbox_events (id, type, payload)
    VALUES ($1, $2, $3)
  `, id, eventType, data)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Claim leases up to limit unprocessed events, oldest first. Rows locked by
// another dispatcher are skipped, and a lease that expired without the event
// being marked makes it claimable again under a fresh claim token.
func (r *Repository) Claim(ctx context.Context, limit int, lease time.Duration) ([]Event, error) {
	token := uuid.New()
	rows, err := r.pool.Query(ctx, `
    WITH cte AS (
        SELECT id
        FROM outbox_events
        WHERE processed_at IS NULL
          AND (claimed_until IS NULL OR claimed_until < now())
        ORDER BY created_at ASC
        LIMIT $1
        FOR UPDATE SKIP LOCKED
    )
    UPDATE outbox_events o
    SET claimed_until = now() + make_interval(secs => $2), claim_token = $3
    FROM cte
    WHERE o.id = cte.id
    RETURNING o.id, o.type, o.payload, o.created_at
  `, limit, lease.Seconds(), token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e := Event{ClaimToken: token}
		if err := rows.Scan(&e.ID, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the CTE order.
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

// Renew extends the lease of a claimed event. It reports false when the
// event was processed or re-claimed under another token.
func (r *Repository) Renew(ctx context.Context, e Event, lease time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
    UPDATE outbox_events
    SET claimed_until = now() + make_interval(secs => $3)
    WHERE id = $1 AND claim_token = $2 AND processed_at IS NULL
  `, e.ID, e.ClaimToken, lease.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkProcessed stamps processed_at and records the handling outcome, but
// only while the event is still held under e.ClaimToken.
func (r *Repository) MarkProcessed(ctx context.Context, e Event, outcome Outcome, lastError string) (bool, error) {
	var errText *string
	if lastError != "" {
		errText = &lastError
	}
	tag, err := r.pool.Exec(ctx, `
    UPDATE outbox_events
    SET processed_at = now(), claimed_until = NULL, outcome = $3, last_error = $4
    WHERE id = $1 AND claim_token = $2 AND processed_at IS NULL
  `, e.ID, e.ClaimToken, string(outcome), errText)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
