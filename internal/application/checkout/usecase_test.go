package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/oakmall/storefront/internal/domain/payment"
	"github.com/oakmall/storefront/internal/domain/settlement"
	"github.com/oakmall/storefront/internal/infrastructure/memory"
)

func int64Ptr(v int64) *int64 { return &v }

func testProducts() map[string]*catalog.Product {
	return map[string]*catalog.Product{
		"sku-cup": {
			ID:             "sku-cup",
			Name:           "Espresso Cup",
			PriceCents:     1250,
			QuantityOnHand: 5,
		},
		"sku-grinder": {
			ID:             "sku-grinder",
			Name:           "Burr Grinder",
			PriceCents:     8900,
			QuantityOnHand: 2,
		},
	}
}

type fixture struct {
	catalog   *MockCatalog
	orders    *MockOrderRepository
	gateway   *MockGateway
	publisher *MockPublisher
	uc        *SettleUseCase
}

func newFixture() *fixture {
	f := &fixture{
		catalog:   &MockCatalog{Products: testProducts()},
		orders:    &MockOrderRepository{},
		gateway:   &MockGateway{},
		publisher: &MockPublisher{},
	}
	f.uc = NewSettleUseCase(f.catalog, f.catalog, f.orders, f.gateway, &MockIDGenerator{}, f.publisher, nil)
	return f
}

func TestSettle_HappyPath(t *testing.T) {
	f := newFixture()

	result, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines: []CartLine{
			{ProductID: "sku-cup", Quantity: 2, ClaimedPriceCents: int64Ptr(1250)},
			{ProductID: "sku-grinder", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, settlement.StateInventoryCommitted, result.State)
	assert.Equal(t, int64(2*1250+8900), result.TotalCents)
	assert.Equal(t, "txn-test", result.TransactionID)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, int64(1250), result.Lines[0].UnitPriceCents)

	assert.Equal(t, 1, f.gateway.Calls)
	assert.Equal(t, []int64{2*1250 + 8900}, f.gateway.Amounts)

	require.Len(t, f.orders.Inserted, 1)
	assert.Equal(t, result.OrderID, f.orders.Inserted[0].ID)

	require.Len(t, f.catalog.DecrementCalls, 1)
	assert.ElementsMatch(t, []catalog.Decrement{
		{ProductID: "sku-cup", Quantity: 2},
		{ProductID: "sku-grinder", Quantity: 1},
	}, f.catalog.DecrementCalls[0])

	assert.Len(t, f.publisher.ByName(settlement.CompletedEvent{}.EventName()), 1)
}

func TestSettle_ClaimedPriceIsNeverUsed(t *testing.T) {
	f := newFixture()
	f.catalog.Products["sku-cup"].PriceCents = 1250

	// No claimed price at all: the catalog price still applies in full.
	result, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3*1250), result.TotalCents)
	assert.Equal(t, []int64{3 * 1250}, f.gateway.Amounts)
}

func TestSettle_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		input SettleInput
		want  error
	}{
		{
			name:  "empty cart",
			input: SettleInput{BuyerID: "b", PaymentToken: "tok"},
			want:  ErrEmptyCart,
		},
		{
			name: "missing buyer",
			input: SettleInput{PaymentToken: "tok",
				Lines: []CartLine{{ProductID: "sku-cup", Quantity: 1}}},
			want: ErrValidation,
		},
		{
			name: "missing token",
			input: SettleInput{BuyerID: "b",
				Lines: []CartLine{{ProductID: "sku-cup", Quantity: 1}}},
			want: ErrValidation,
		},
		{
			name: "missing product id",
			input: SettleInput{BuyerID: "b", PaymentToken: "tok",
				Lines: []CartLine{{Quantity: 1}}},
			want: ErrValidation,
		},
		{
			name: "negative quantity",
			input: SettleInput{BuyerID: "b", PaymentToken: "tok",
				Lines: []CartLine{{ProductID: "sku-cup", Quantity: -1}}},
			want: ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()

			result, err := f.uc.Execute(context.Background(), tc.input)
			require.ErrorIs(t, err, tc.want)
			assert.Nil(t, result)

			assert.Zero(t, f.gateway.Calls)
			assert.Empty(t, f.orders.Inserted)
			assert.Empty(t, f.catalog.DecrementCalls)
		})
	}
}

func TestSettle_ZeroQuantityDefaultsToOne(t *testing.T) {
	f := newFixture()

	result, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 0}},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, 1, result.Lines[0].Quantity)
	assert.Equal(t, int64(1250), result.TotalCents)
}

func TestSettle_ProductNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-unknown", Quantity: 1}},
	})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	var notFound *catalog.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "sku-unknown", notFound.ProductID)

	assert.Zero(t, f.gateway.Calls)
	assert.Empty(t, f.orders.Inserted)
}

func TestSettle_PriceMismatch(t *testing.T) {
	f := newFixture()

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines: []CartLine{
			{ProductID: "sku-cup", Quantity: 1, ClaimedPriceCents: int64Ptr(1)},
		},
	})

	var mismatch *PriceMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "sku-cup", mismatch.ProductID)
	assert.Equal(t, int64(1250), mismatch.ExpectedCents)
	assert.Equal(t, int64(1), mismatch.ReceivedCents)

	// Tampering signal published, but the gateway and repositories untouched.
	assert.Len(t, f.publisher.ByName(settlement.PriceMismatchEvent{}.EventName()), 1)
	assert.Zero(t, f.gateway.Calls)
	assert.Empty(t, f.orders.Inserted)
	assert.Empty(t, f.catalog.DecrementCalls)
}

func TestSettle_InvalidCatalogPrice(t *testing.T) {
	f := newFixture()
	f.catalog.Products["sku-cup"].PriceCents = -1

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 1}},
	})

	var badPrice *InvalidCatalogPriceError
	require.ErrorAs(t, err, &badPrice)
	assert.Equal(t, "sku-cup", badPrice.ProductID)
	assert.Zero(t, f.gateway.Calls)
}

func TestSettle_ZeroAmount(t *testing.T) {
	f := newFixture()
	f.catalog.Products["sku-cup"].PriceCents = 0

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 2}},
	})
	require.ErrorIs(t, err, ErrZeroAmount)
	assert.Zero(t, f.gateway.Calls)
}

func TestSettle_InsufficientStockPrecheck(t *testing.T) {
	f := newFixture()

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-grinder", Quantity: 3}},
	})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)

	var insufficient *catalog.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)

	assert.Zero(t, f.gateway.Calls)
	assert.Empty(t, f.orders.Inserted)
}

func TestSettle_DuplicateLinesAreCheckedCumulatively(t *testing.T) {
	f := newFixture()

	// 2 + 1 of a product with 2 on hand must fail even though each line
	// individually fits.
	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines: []CartLine{
			{ProductID: "sku-grinder", Quantity: 2},
			{ProductID: "sku-grinder", Quantity: 1},
		},
	})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Zero(t, f.gateway.Calls)
}

func TestSettle_GatewayDeclined(t *testing.T) {
	f := newFixture()
	f.gateway.Err = payment.ErrDeclined

	result, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_decline_insufficient_funds",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 1}},
	})
	require.ErrorIs(t, err, payment.ErrDeclined)
	assert.Nil(t, result)

	// A decline leaves the system exactly as it was.
	assert.Equal(t, 1, f.gateway.Calls)
	assert.Empty(t, f.orders.Inserted)
	assert.Empty(t, f.catalog.DecrementCalls)
	assert.Empty(t, f.publisher.Events)
}

func TestSettle_GatewayUnavailable(t *testing.T) {
	f := newFixture()
	f.gateway.Err = payment.ErrUnavailable

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 1}},
	})
	require.ErrorIs(t, err, payment.ErrUnavailable)
	assert.Empty(t, f.orders.Inserted)
	assert.Empty(t, f.catalog.DecrementCalls)
}

func TestSettle_OrderInsertFailureNeedsReconciliation(t *testing.T) {
	f := newFixture()
	f.orders.InsertErr = errors.New("disk full")

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 1}},
	})

	var commitErr *PostPaymentCommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, "buyer-1", commitErr.BuyerID)
	assert.Equal(t, "txn-test", commitErr.TransactionID)
	assert.Equal(t, int64(1250), commitErr.AmountCents)
	require.Len(t, commitErr.Lines, 1)

	// The charge happened exactly once, nothing was committed, and the
	// reconciliation event carries the captured charge.
	assert.Equal(t, 1, f.gateway.Calls)
	assert.Empty(t, f.catalog.DecrementCalls)

	events := f.publisher.ByName(settlement.ReconciliationRequiredEvent{}.EventName())
	require.Len(t, events, 1)
	evt := events[0].(settlement.ReconciliationRequiredEvent)
	assert.Equal(t, "txn-test", evt.TransactionID)
	assert.Equal(t, int64(1250), evt.AmountCents)
}

func TestSettle_DecrementFailureNeedsReconciliation(t *testing.T) {
	f := newFixture()
	f.catalog.DecrementErr = &catalog.InsufficientStockError{
		ProductID: "sku-cup", Available: 0, Requested: 1,
	}

	_, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 1}},
	})

	var commitErr *PostPaymentCommitError
	require.ErrorAs(t, err, &commitErr)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)

	// The order row exists and the loser is flagged, never silently dropped.
	assert.Len(t, f.orders.Inserted, 1)
	assert.Len(t, f.publisher.ByName(settlement.ReconciliationRequiredEvent{}.EventName()), 1)
}

func TestSettle_ConcurrentRequestsNeverOversell(t *testing.T) {
	store := memory.NewCatalogStore()
	product, err := catalog.NewProduct("sku-cup", "Espresso Cup", 1250, 5)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), product))

	uc := NewSettleUseCase(store, store, memory.NewOrderRepository(), &MockGateway{},
		&MockIDGenerator{}, &MockPublisher{}, nil)

	input := SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 3}},
	}

	results := make([]*SettleResult, 2)
	errs := make([]error, 2)

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			results[i], errs[i] = uc.Execute(context.Background(), input)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, failed int
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			ok++
			assert.Equal(t, settlement.StateInventoryCommitted, results[i].State)
		} else {
			failed++
			assert.ErrorIs(t, errs[i], catalog.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, ok, "exactly one settlement must win the stock")
	assert.Equal(t, 1, failed)

	remaining, err := store.FindByIDs(context.Background(), []string{"sku-cup"})
	require.NoError(t, err)
	assert.Equal(t, 2, remaining["sku-cup"].QuantityOnHand)
}

func TestSettle_ManyConcurrentRequestsDrainStockExactly(t *testing.T) {
	store := memory.NewCatalogStore()
	product, err := catalog.NewProduct("sku-cup", "Espresso Cup", 1250, 10)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), product))

	uc := NewSettleUseCase(store, store, memory.NewOrderRepository(), &MockGateway{},
		&MockIDGenerator{}, &MockPublisher{}, nil)

	input := SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 3}},
	}

	const attempts = 20
	errs := make([]error, attempts)

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			_, errs[i] = uc.Execute(context.Background(), input)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
		}
	}

	remaining, err := store.FindByIDs(context.Background(), []string{"sku-cup"})
	require.NoError(t, err)
	assert.Equal(t, 10-3*winners, remaining["sku-cup"].QuantityOnHand)
	assert.Equal(t, 3, winners, "stock of 10 covers exactly three settlements of 3")
}

func TestSettle_ResultTimestampsAndIDsAreStable(t *testing.T) {
	f := newFixture()

	before := time.Now().UTC()
	result, err := f.uc.Execute(context.Background(), SettleInput{
		BuyerID:      "buyer-1",
		PaymentToken: "tok_visa",
		Lines:        []CartLine{{ProductID: "sku-cup", Quantity: 1}},
	})
	require.NoError(t, err)

	stored, err := f.orders.Get(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, result.TotalCents, stored.TotalCents)
	assert.False(t, stored.CreatedAt.Before(before))
}
