// Package journal stores partial cross-tenant transfers until an operator
// reconciles them.
package journal

import (
	"context"
	"sync"

	"github.com/stockroom/backend/internal/domain/catalog"
)

// InMemoryJournal keeps entries in process memory. Entries are lost on
// restart and are not shared between instances.
type InMemoryJournal struct {
	mu      sync.RWMutex
	entries []catalog.PartialTransfer
}

// NewInMemoryJournal creates an empty in-memory journal
func NewInMemoryJournal() *InMemoryJournal {
	return &InMemoryJournal{
		entries: make([]catalog.PartialTransfer, 0),
	}
}

// Record appends an entry
func (j *InMemoryJournal) Record(_ context.Context, entry catalog.PartialTransfer) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

// List returns the entries in recording order
func (j *InMemoryJournal) List(_ context.Context) ([]catalog.PartialTransfer, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]catalog.PartialTransfer, len(j.entries))
	copy(out, j.entries)
	return out, nil
}

// Close is a no-op
func (j *InMemoryJournal) Close() error {
	return nil
}

var _ catalog.ReconciliationJournal = (*InMemoryJournal)(nil)
