package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	appcheckout "github.com/oakmall/storefront/internal/application/checkout"
	apporders "github.com/oakmall/storefront/internal/application/orders"
	domaincatalog "github.com/oakmall/storefront/internal/domain/catalog"
	domainorder "github.com/oakmall/storefront/internal/domain/order"
	"github.com/oakmall/storefront/internal/observability"
	"github.com/oakmall/storefront/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerBuyerID        = "X-Buyer-ID"
)

type Handler struct {
	settle *appcheckout.SettleUseCase
	orders *apporders.Service
	log    observability.Logger
	tel    observability.Observability
}

func NewHandler(settle *appcheckout.SettleUseCase, orders *apporders.Service, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		settle: settle,
		orders: orders,
		log:    tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:    tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(ObservabilityMiddleware(
		h.log,
		func(r *http.Request) string { return r.Header.Get(headerRequestID) },
		func(r *http.Request) string { return r.Header.Get(headerBuyerID) },
		h.tel,
	))

	r.Post("/checkout", h.handleCheckout)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Get("/health", h.handleHealth)

	return r
}

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
	// Price is the optional client-claimed unit price in cents. It is only
	// ever checked against the catalog, never used in computation.
	Price *int64 `json:"price,omitempty"`
}

type checkoutRequest struct {
	PaymentToken string            `json:"payment_token"`
	Cart         []cartLineRequest `json:"cart"`
}

type orderLineResponse struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

type checkoutResponse struct {
	OK            bool                `json:"ok"`
	OrderID       string              `json:"order_id"`
	State         string              `json:"state"`
	TotalCents    int64               `json:"total_cents"`
	TransactionID string              `json:"transaction_id"`
	Lines         []orderLineResponse `json:"lines"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	// Auth happens upstream; the edge injects the resolved buyer identity.
	buyerID := r.Header.Get(headerBuyerID)

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	lines := make([]appcheckout.CartLine, 0, len(req.Cart))
	for _, l := range req.Cart {
		lines = append(lines, appcheckout.CartLine{
			ProductID:         l.ProductID,
			Quantity:          l.Quantity,
			ClaimedPriceCents: l.Price,
		})
	}

	result, err := h.settle.Execute(r.Context(), appcheckout.SettleInput{
		BuyerID:      buyerID,
		PaymentToken: req.PaymentToken,
		Lines:        lines,
	})
	if err != nil {
		h.writeSettlementError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		OK:            true,
		OrderID:       result.OrderID,
		State:         string(result.State),
		TotalCents:    result.TotalCents,
		TransactionID: result.TransactionID,
		Lines:         toLineResponses(result.Lines),
	})
}

type orderResponse struct {
	ID            string              `json:"id"`
	BuyerID       string              `json:"buyer_id"`
	Lines         []orderLineResponse `json:"lines"`
	TotalCents    int64               `json:"total_cents"`
	TransactionID string              `json:"transaction_id"`
	PaymentStatus string              `json:"payment_status"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ord, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domainorder.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order_not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		ID:            ord.ID,
		BuyerID:       ord.BuyerID,
		Lines:         toLineResponses(ord.Lines),
		TotalCents:    ord.TotalCents,
		TransactionID: ord.Payment.TransactionID,
		PaymentStatus: ord.Payment.Status,
		CreatedAt:     ord.CreatedAt,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type errorResponse struct {
	OK      bool           `json:"ok"`
	Kind    string         `json:"kind"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// writeSettlementError maps the settlement error taxonomy onto status codes.
// Post-payment commit failures stay loud and distinct so client tooling
// cannot mistake them for ordinary failures.
func (h *Handler) writeSettlementError(w http.ResponseWriter, r *http.Request, err error) {
	kind := appcheckout.Kind(err)
	resp := errorResponse{Kind: kind, Error: err.Error()}

	status := http.StatusInternalServerError
	switch kind {
	case "empty_cart", "zero_amount", "invalid_request":
		status = http.StatusBadRequest
	case "product_not_found":
		status = http.StatusNotFound
	case "price_mismatch":
		status = http.StatusUnprocessableEntity
		var mismatch *appcheckout.PriceMismatchError
		if errors.As(err, &mismatch) {
			resp.Details = map[string]any{
				"product_id":     mismatch.ProductID,
				"expected_cents": mismatch.ExpectedCents,
			}
		}
	case "insufficient_stock":
		status = http.StatusConflict
		var stock *domaincatalog.InsufficientStockError
		if errors.As(err, &stock) {
			resp.Details = map[string]any{
				"product_id": stock.ProductID,
				"available":  stock.Available,
				"requested":  stock.Requested,
			}
		}
	case "gateway_declined", "gateway_unavailable":
		status = http.StatusPaymentRequired
	case "needs_reconciliation":
		var commit *appcheckout.PostPaymentCommitError
		if errors.As(err, &commit) {
			resp.Details = map[string]any{
				"transaction_id": commit.TransactionID,
				"amount_cents":   commit.AmountCents,
			}
		}
	}

	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("settlement_request_failed",
			observability.F("kind", kind),
			observability.F("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}

func toLineResponses(lines []domainorder.Line) []orderLineResponse {
	out := make([]orderLineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, orderLineResponse{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPriceCents: l.UnitPriceCents,
			Quantity:       l.Quantity,
		})
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, errorResponse{Kind: kind, Error: err.Error()})
}
