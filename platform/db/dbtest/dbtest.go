// Package dbtest provides a db.Transactor for in-memory fakes.
package dbtest

import (
	"context"
	"sync"

	"fieldops_backend/platform/db"
)

// Snapshotter captures and restores in-memory state.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}

// Transactor runs fn against a nil DBTX and restores the state snapshot
// when fn fails, mimicking a rollback.
type Transactor struct {
	mu        sync.Mutex
	State     Snapshotter
	Commits   int
	Rollbacks int
}

// NewTransactor creates a Transactor for state.
func NewTransactor(state Snapshotter) *Transactor {
	return &Transactor{State: state}
}

// WithTx implements db.Transactor. Calls are serialized.
func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.State.Snapshot()
	if err := fn(ctx, nil); err != nil {
		t.State.Restore(snap)
		t.Rollbacks++
		return err
	}
	t.Commits++
	return nil
}
