package memory

import (
	"context"
	"sync"

	domain "github.com/oakmall/storefront/internal/domain/catalog"
)

// CatalogStore is an in-memory catalog.Store for development and tests. The
// conditional decrement holds the write lock for the whole batch, so a batch
// either applies completely or not at all and stock can never go negative.
type CatalogStore struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		products: make(map[string]*domain.Product),
	}
}

func (s *CatalogStore) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			found[id] = cloneProduct(p)
		}
	}
	return found, nil
}

func (s *CatalogStore) Save(ctx context.Context, product *domain.Product) error {
	_ = ctx
	if product == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[product.ID] = cloneProduct(product)
	return nil
}

// DecrementStock applies the batch conditionally: every line is checked
// against a working copy before anything is written, so duplicate product ids
// within one batch cannot oversell and a failed line leaves the whole batch
// unapplied.
func (s *CatalogStore) DecrementStock(ctx context.Context, decrements []domain.Decrement) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := make(map[string]int, len(decrements))
	for _, dec := range decrements {
		p, ok := s.products[dec.ProductID]
		if !ok {
			return &domain.NotFoundError{ProductID: dec.ProductID}
		}
		if _, seen := remaining[dec.ProductID]; !seen {
			remaining[dec.ProductID] = p.QuantityOnHand
		}
		if remaining[dec.ProductID] < dec.Quantity {
			return &domain.InsufficientStockError{
				ProductID: dec.ProductID,
				Available: p.QuantityOnHand,
				Requested: dec.Quantity,
			}
		}
		remaining[dec.ProductID] -= dec.Quantity
	}

	for id, qty := range remaining {
		p := cloneProduct(s.products[id])
		p.QuantityOnHand = qty
		s.products[id] = p
	}
	return nil
}

func cloneProduct(p *domain.Product) *domain.Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
