package orders

import (
	"context"
	"errors"

	"github.com/oakmall/storefront/internal/domain/order"
)

// Service exposes read access to settled orders for dashboards and support
// tooling. Orders are immutable once written, so reads need no coordination
// with in-flight settlements.
type Service struct {
	repo order.Repository
}

func NewService(repo order.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (*order.Order, error) {
	if id == "" {
		return nil, errors.New("orders: id is required")
	}
	return s.repo.Get(ctx, id)
}
