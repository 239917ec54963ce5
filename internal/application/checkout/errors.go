package checkout

import (
	"errors"
	"fmt"

	"github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/oakmall/storefront/internal/domain/order"
	"github.com/oakmall/storefront/internal/domain/payment"
)

var (
	ErrEmptyCart  = errors.New("checkout: cart is empty")
	ErrZeroAmount = errors.New("checkout: zero-value charges are not allowed")
	ErrValidation = errors.New("checkout: invalid request")
)

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// PriceMismatchError means the client-claimed price disagrees with the
// catalog. The catalog is always authoritative; a mismatch is treated as a
// tampering signal, not an ordinary validation failure.
type PriceMismatchError struct {
	ProductID     string
	ExpectedCents int64
	ReceivedCents int64
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("checkout: price mismatch for product %s: expected %d, received %d",
		e.ProductID, e.ExpectedCents, e.ReceivedCents)
}

// InvalidCatalogPriceError is a data-integrity fault in the catalog itself,
// not a client fault.
type InvalidCatalogPriceError struct {
	ProductID string
}

func (e *InvalidCatalogPriceError) Error() string {
	return fmt.Sprintf("checkout: catalog price for product %s is invalid", e.ProductID)
}

// PostPaymentCommitError is the most severe failure class: the gateway
// captured a charge but the order or its inventory decrements did not fully
// commit. It is never retried and never folded into a generic error, so that
// callers and operators can tell it apart from everything else.
type PostPaymentCommitError struct {
	OrderID       string
	BuyerID       string
	TransactionID string
	AmountCents   int64
	Lines         []order.Line
	Err           error
}

func (e *PostPaymentCommitError) Error() string {
	return fmt.Sprintf("checkout: payment %s captured but commit failed: %v", e.TransactionID, e.Err)
}

func (e *PostPaymentCommitError) Unwrap() error { return e.Err }

// Kind maps an error to a low-cardinality class used for metric labels, log
// fields and HTTP status selection.
func Kind(err error) string {
	var mismatch *PriceMismatchError
	var badPrice *InvalidCatalogPriceError
	var postCommit *PostPaymentCommitError

	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.As(err, &postCommit):
		return "needs_reconciliation"
	case errors.Is(err, catalog.ErrNotFound):
		return "product_not_found"
	case errors.As(err, &mismatch):
		return "price_mismatch"
	case errors.As(err, &badPrice):
		return "invalid_catalog_price"
	case errors.Is(err, catalog.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, payment.ErrDeclined):
		return "gateway_declined"
	case errors.Is(err, payment.ErrUnavailable):
		return "gateway_unavailable"
	default:
		return "internal"
	}
}
