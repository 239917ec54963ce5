package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrConflict        = errors.New("order: already exists")
	ErrNoLines         = errors.New("order: at least one line is required")
	ErrInvalidQuantity = errors.New("order: line quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("order: line price must be zero or greater")
	ErrPaymentMissing  = errors.New("order: payment record is required")
)

// Line is one settled product/quantity pairing. The unit price is always the
// catalog price that was in effect when the settlement was priced.
type Line struct {
	ProductID      string
	Name           string
	UnitPriceCents int64
	Quantity       int
}

func (l Line) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Payment is the gateway's charge record, embedded verbatim for dispute and
// audit purposes.
type Payment struct {
	TransactionID string
	AmountCents   int64
	Status        string
}

// Order is created exactly once per successful settlement and is immutable
// after creation.
type Order struct {
	ID         string
	BuyerID    string
	Lines      []Line
	TotalCents int64
	Payment    Payment
	CreatedAt  time.Time
}

// New builds an order from settled lines. The total is always recomputed from
// the lines so a persisted order can never disagree with its own line items.
func New(id, buyerID string, lines []Line, payment Payment) (*Order, error) {
	if id == "" {
		return nil, errors.New("order: id is required")
	}
	if buyerID == "" {
		return nil, errors.New("order: buyer id is required")
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if payment.TransactionID == "" {
		return nil, ErrPaymentMissing
	}

	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if l.UnitPriceCents < 0 {
			return nil, ErrInvalidPrice
		}
		total += l.SubtotalCents()
	}

	return &Order{
		ID:         id,
		BuyerID:    buyerID,
		Lines:      append([]Line(nil), lines...),
		TotalCents: total,
		Payment:    payment,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}
