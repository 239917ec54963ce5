package catalog

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("catalog: product not found")
	ErrInvalidPrice      = errors.New("catalog: price must be zero or greater")
	ErrInvalidQuantity   = errors.New("catalog: quantity on hand must be zero or greater")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

// Product is the authoritative catalog record. Settlement only reads it;
// the stock committer is the sole writer of QuantityOnHand.
type Product struct {
	ID             string
	Name           string
	PriceCents     int64
	QuantityOnHand int
	UpdatedAt      time.Time
}

func NewProduct(id, name string, priceCents int64, quantityOnHand int) (*Product, error) {
	if id == "" {
		return nil, errors.New("catalog: product id is required")
	}
	if priceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if quantityOnHand < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Product{
		ID:             id,
		Name:           name,
		PriceCents:     priceCents,
		QuantityOnHand: quantityOnHand,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// NotFoundError reports which cart line referenced an unknown product.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: product %s not found", e.ProductID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError is returned both by the advisory pre-check and by
// the conditional decrement when on-hand stock cannot cover a request.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
