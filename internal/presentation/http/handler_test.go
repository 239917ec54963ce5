package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcheckout "github.com/oakmall/storefront/internal/application/checkout"
	apporders "github.com/oakmall/storefront/internal/application/orders"
	domaincatalog "github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/oakmall/storefront/internal/infrastructure/gateway"
	"github.com/oakmall/storefront/internal/infrastructure/id"
	"github.com/oakmall/storefront/internal/infrastructure/memory"
)

type testServer struct {
	store  *memory.CatalogStore
	orders *memory.OrderRepository
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewCatalogStore()
	for _, seed := range []struct {
		id, name string
		price    int64
		qty      int
	}{
		{"sku-cup", "Espresso Cup", 1250, 5},
		{"sku-grinder", "Burr Grinder", 8900, 2},
	} {
		product, err := domaincatalog.NewProduct(seed.id, seed.name, seed.price, seed.qty)
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), product))
	}

	repo := memory.NewOrderRepository()
	client := gateway.NewClient("sk_test", 0, 0)
	settle := appcheckout.NewSettleUseCase(
		store, store, repo,
		gateway.NewAdapter(client, nil),
		id.NewUUIDGenerator(),
		nil, nil,
	)
	handler := NewHandler(settle, apporders.NewService(repo), nil)

	return &testServer{store: store, orders: repo, router: handler.Router()}
}

func (s *testServer) checkout(t *testing.T, buyerID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if buyerID != "" {
		req.Header.Set("X-Buyer-ID", buyerID)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCheckout_Success(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_visa",
		"cart": []map[string]any{
			{"product_id": "sku-cup", "quantity": 3, "price": 1250},
			{"product_id": "sku-grinder"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody[checkoutResponse](t, rec)
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, "inventory_committed", resp.State)
	assert.Equal(t, int64(3*1250+8900), resp.TotalCents)
	assert.NotEmpty(t, resp.TransactionID)
	require.Len(t, resp.Lines, 2)

	// Stock committed and the order is readable back.
	found, err := srv.store.FindByIDs(context.Background(), []string{"sku-cup", "sku-grinder"})
	require.NoError(t, err)
	assert.Equal(t, 2, found["sku-cup"].QuantityOnHand)
	assert.Equal(t, 1, found["sku-grinder"].QuantityOnHand)

	getRec := httptest.NewRecorder()
	srv.router.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/orders/"+resp.OrderID, nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	ord := decodeBody[orderResponse](t, getRec)
	assert.Equal(t, "buyer-1", ord.BuyerID)
	assert.Equal(t, resp.TotalCents, ord.TotalCents)
}

func TestCheckout_EmptyCart(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_visa",
		"cart":          []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_cart", decodeBody[errorResponse](t, rec).Kind)
}

func TestCheckout_MalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-Buyer-ID", "buyer-1")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[errorResponse](t, rec).Kind)
}

func TestCheckout_UnknownFieldRejected(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_visa",
		"cart":          []map[string]any{{"product_id": "sku-cup"}},
		"discount":      "please",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_ProductNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_visa",
		"cart":          []map[string]any{{"product_id": "sku-unknown"}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", decodeBody[errorResponse](t, rec).Kind)
}

func TestCheckout_PriceMismatch(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_visa",
		"cart":          []map[string]any{{"product_id": "sku-cup", "quantity": 1, "price": 1}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "price_mismatch", resp.Kind)
	assert.Equal(t, "sku-cup", resp.Details["product_id"])
	assert.EqualValues(t, 1250, resp.Details["expected_cents"])

	// Nothing committed.
	found, err := srv.store.FindByIDs(context.Background(), []string{"sku-cup"})
	require.NoError(t, err)
	assert.Equal(t, 5, found["sku-cup"].QuantityOnHand)
	assert.Zero(t, srv.orders.Count())
}

func TestCheckout_InsufficientStock(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_visa",
		"cart":          []map[string]any{{"product_id": "sku-grinder", "quantity": 3}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", resp.Kind)
	assert.EqualValues(t, 2, resp.Details["available"])
	assert.EqualValues(t, 3, resp.Details["requested"])
}

func TestCheckout_GatewayDeclined(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "buyer-1", map[string]any{
		"payment_token": "tok_decline_insufficient_funds",
		"cart":          []map[string]any{{"product_id": "sku-cup", "quantity": 1}},
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "gateway_declined", decodeBody[errorResponse](t, rec).Kind)

	// A decline leaves no order and no stock movement behind.
	found, err := srv.store.FindByIDs(context.Background(), []string{"sku-cup"})
	require.NoError(t, err)
	assert.Equal(t, 5, found["sku-cup"].QuantityOnHand)
	assert.Zero(t, srv.orders.Count())
}

func TestCheckout_MissingBuyerHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.checkout(t, "", map[string]any{
		"payment_token": "tok_visa",
		"cart":          []map[string]any{{"product_id": "sku-cup"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[errorResponse](t, rec).Kind)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord-missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", decodeBody[errorResponse](t, rec).Kind)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
