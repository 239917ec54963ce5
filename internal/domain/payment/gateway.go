package payment

import (
	"context"
	"errors"
)

var (
	// ErrDeclined means the provider processed the charge request and refused it.
	ErrDeclined = errors.New("payment: charge declined")
	// ErrUnavailable means the provider could not be reached or answered with a
	// transport-level failure. No assumption may be made about whether a charge
	// went through, which is why settlements never retry it.
	ErrUnavailable = errors.New("payment: gateway unavailable")
)

// Result is the provider's charge record. It is treated as an opaque payload
// and embedded verbatim into the order.
type Result struct {
	TransactionID string
	AmountCents   int64
	Status        string
}

// Gateway authorizes a charge against a client payment token. The orchestrator
// guarantees the amount is the server-derived total, never zero, and that
// Authorize is called at most once per settlement attempt.
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, token string) (*Result, error)
}
