package reconciliation

import (
	"context"
	"time"

	"github.com/oakmall/storefront/internal/domain/order"
)

// Entry records a captured payment whose settlement did not fully commit.
// Entries are consumed by operators, never by automated retries.
type Entry struct {
	ID            string
	OrderID       string
	BuyerID       string
	TransactionID string
	AmountCents   int64
	Lines         []order.Line
	Reason        string
	RecordedAt    time.Time
}

type Journal interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context) ([]*Entry, error)
}
