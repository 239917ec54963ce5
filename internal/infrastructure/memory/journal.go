package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/oakmall/storefront/internal/domain/reconciliation"
)

// Journal is an in-memory, append-only reconciliation journal.
type Journal struct {
	mu      sync.RWMutex
	entries []*domain.Entry
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Append(ctx context.Context, entry *domain.Entry) error {
	_ = ctx
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("journal: entry id is required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, cloneEntry(entry))
	return nil
}

func (j *Journal) List(ctx context.Context) ([]*domain.Entry, error) {
	_ = ctx

	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]*domain.Entry, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func cloneEntry(e *domain.Entry) *domain.Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Lines = append(clone.Lines[:0:0], e.Lines...)
	return &clone
}
