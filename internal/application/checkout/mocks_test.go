package checkout

import (
	"context"
	"strconv"
	"sync"

	"github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/oakmall/storefront/internal/domain/order"
	"github.com/oakmall/storefront/internal/domain/outbox"
	"github.com/oakmall/storefront/internal/domain/payment"
)

// MockCatalog implements catalog.Reader and catalog.Committer for testing.
type MockCatalog struct {
	Products map[string]*catalog.Product
	FindErr  error

	DecrementErr   error
	DecrementCalls [][]catalog.Decrement
}

func (m *MockCatalog) FindByIDs(_ context.Context, ids []string) (map[string]*catalog.Product, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	found := make(map[string]*catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.Products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (m *MockCatalog) DecrementStock(_ context.Context, decs []catalog.Decrement) error {
	m.DecrementCalls = append(m.DecrementCalls, decs)
	return m.DecrementErr
}

// MockOrderRepository implements order.Repository and captures inserts.
type MockOrderRepository struct {
	InsertErr error
	Inserted  []*order.Order
}

func (m *MockOrderRepository) Insert(_ context.Context, o *order.Order) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.Inserted = append(m.Inserted, o)
	return nil
}

func (m *MockOrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	for _, o := range m.Inserted {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

// MockGateway implements payment.Gateway and records every authorization.
type MockGateway struct {
	mu     sync.Mutex
	Result *payment.Result
	Err    error

	Calls   int
	Amounts []int64
	Tokens  []string
}

func (m *MockGateway) Authorize(_ context.Context, amountCents int64, token string) (*payment.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Amounts = append(m.Amounts, amountCents)
	m.Tokens = append(m.Tokens, token)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &payment.Result{TransactionID: "txn-test", AmountCents: amountCents, Status: "succeeded"}, nil
}

// MockPublisher implements outbox.Publisher and collects published events.
type MockPublisher struct {
	mu     sync.Mutex
	Err    error
	Events []outbox.Event
}

func (m *MockPublisher) Publish(_ context.Context, e outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockPublisher) ByName(name string) []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Event
	for _, e := range m.Events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// MockIDGenerator returns a fixed sequence of ids.
type MockIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (m *MockIDGenerator) NewID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return "id-" + strconv.Itoa(m.next)
}
