package settlement

import (
	"time"

	"github.com/oakmall/storefront/internal/domain/order"
)

// CompletedEvent is emitted after a settlement reaches InventoryCommitted.
type CompletedEvent struct {
	OrderID       string
	BuyerID       string
	TotalCents    int64
	TransactionID string
	OccurredAt    time.Time
}

func (CompletedEvent) EventName() string { return "settlement.completed" }

func NewCompletedEvent(o *order.Order) CompletedEvent {
	return CompletedEvent{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		TotalCents:    o.TotalCents,
		TransactionID: o.Payment.TransactionID,
		OccurredAt:    time.Now().UTC(),
	}
}

// ReconciliationRequiredEvent is emitted when a charge was captured but the
// order or its inventory decrements could not be committed. It carries enough
// detail for an operator to reconcile the charge by hand.
type ReconciliationRequiredEvent struct {
	OrderID       string
	BuyerID       string
	TransactionID string
	AmountCents   int64
	Lines         []order.Line
	Reason        string
	OccurredAt    time.Time
}

func (ReconciliationRequiredEvent) EventName() string { return "settlement.reconciliation_required" }

// PriceMismatchEvent is emitted when a client-claimed price disagrees with the
// catalog price. It is an anti-tampering signal, kept separate from ordinary
// validation failures so it can be audited.
type PriceMismatchEvent struct {
	BuyerID       string
	ProductID     string
	ExpectedCents int64
	ReceivedCents int64
	OccurredAt    time.Time
}

func (PriceMismatchEvent) EventName() string { return "settlement.price_mismatch" }
