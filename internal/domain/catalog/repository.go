package catalog

import "context"

// Reader batch-fetches authoritative product records by id.
// Implementations return only the products that exist; callers decide how to
// treat missing ids.
type Reader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
}

// Decrement is one line of a bulk stock decrement.
type Decrement struct {
	ProductID string
	Quantity  int
}

// Committer applies stock decrements as a single atomic, conditional batch:
// every line decrements only if its remaining stock covers the quantity, and
// either the whole batch applies or none of it does. A check-then-write pair
// is not an acceptable implementation; the condition must be evaluated by the
// same operation that writes.
type Committer interface {
	DecrementStock(ctx context.Context, decrements []Decrement) error
}

// Store is the full catalog port used by the settlement wiring.
type Store interface {
	Reader
	Committer
	Save(ctx context.Context, product *Product) error
}
