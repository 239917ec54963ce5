package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/oakmall/storefront/internal/application"
	"github.com/oakmall/storefront/internal/domain/catalog"
	"github.com/oakmall/storefront/internal/domain/order"
	"github.com/oakmall/storefront/internal/domain/outbox"
	"github.com/oakmall/storefront/internal/domain/payment"
	"github.com/oakmall/storefront/internal/domain/settlement"
	"github.com/oakmall/storefront/internal/observability"
	"github.com/oakmall/storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	checkoutService = "checkout-service"
	useCaseSettle   = "checkout.settle"
	spanPrefix      = "UC."
	gatewayPeer     = "payment_gateway"
	gatewayEndpoint = "authorize"
	publishTimeout  = 300 * time.Millisecond
)

// CartLine is the untrusted, request-scoped client input. ClaimedPriceCents is
// optional and only ever compared against the catalog, never computed with.
type CartLine struct {
	ProductID         string
	Quantity          int
	ClaimedPriceCents *int64
}

type SettleInput struct {
	BuyerID      string
	PaymentToken string
	Lines        []CartLine
}

type SettleResult struct {
	OrderID       string
	State         settlement.State
	TotalCents    int64
	TransactionID string
	Lines         []order.Line
}

var _ application.UseCase[SettleInput, *SettleResult] = (*SettleUseCase)(nil)

// SettleUseCase turns a client-submitted cart into a paid, persisted order.
// It owns the settlement state machine and sequences catalog lookup, pricing,
// the stock pre-check, the single gateway charge, order persistence and the
// conditional inventory commit.
type SettleUseCase struct {
	catalogReader catalog.Reader
	stock         catalog.Committer
	orders        order.Repository
	gateway       payment.Gateway
	idGenerator   IDGenerator
	publisher     outbox.Publisher
	tel           observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // settlement_requests_total{outcome}
	durHistogram observability.Histogram // settlement_duration_seconds
	extCounter   observability.Counter   // gateway_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // gateway_request_duration_seconds{peer,endpoint}
}

// NewSettleUseCase wires the collaborators required to execute a settlement.
func NewSettleUseCase(
	catalogReader catalog.Reader,
	stock catalog.Committer,
	orders order.Repository,
	gateway payment.Gateway,
	idGen IDGenerator,
	publisher outbox.Publisher,
	tel observability.Observability,
) *SettleUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLog := tel.Logger().With(
		observability.F("service", checkoutService),
	)

	metrics := tel.Metrics()
	return &SettleUseCase{
		catalogReader: catalogReader,
		stock:         stock,
		orders:        orders,
		gateway:       gateway,
		idGenerator:   idGen,
		publisher:     publisher,
		tel:           tel,
		log:           baseLog,
		reqCounter:    metrics.Counter(observability.MSettlementRequests),
		durHistogram:  metrics.Histogram(observability.MSettlementDuration),
		extCounter:    metrics.Counter(observability.MGatewayRequests),
		extHistogram:  metrics.Histogram(observability.MGatewayDuration),
	}
}

// Execute runs one settlement attempt end to end.
func (uc *SettleUseCase) Execute(ctx context.Context, cmd SettleInput) (_ *SettleResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(observability.F("use_case", useCaseSettle))
	attempt := settlement.NewAttempt()

	ctx, span := uc.tel.Tracer().Start(ctx, spanPrefix+"Settle",
		attribute.String("use_case", useCaseSettle),
		attribute.String("settlement.buyer_id", cmd.BuyerID),
		attribute.Int("settlement.cart_lines", len(cmd.Lines)),
	)
	start := time.Now()

	defer func() {
		lat := time.Since(start).Seconds()
		kind := Kind(err)

		if span != nil {
			span.SetAttributes(attribute.String("settlement.state", string(attempt.State())))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, kind)
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
		}

		uc.reqCounter.Add(1, observability.L("outcome", kind))
		uc.durHistogram.Observe(lat)

		fields := []observability.Field{
			observability.F("outcome", kind),
			observability.F("state", string(attempt.State())),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("settlement_done", fields...)
	}()

	// Validation: everything here fails with zero side effects and the
	// gateway is never called.
	lines, verr := normalizeLines(cmd)
	if verr != nil {
		_ = attempt.Reject(Kind(verr))
		return nil, verr
	}
	if err := attempt.Advance(settlement.StateValidated); err != nil {
		return nil, err
	}

	products, ferr := uc.catalogReader.FindByIDs(ctx, productIDs(lines))
	if ferr != nil {
		_ = attempt.Reject(Kind(ferr))
		return nil, fmt.Errorf("checkout: catalog lookup: %w", ferr)
	}

	priced, total, perr := priceLines(lines, products)
	if perr != nil {
		_ = attempt.Reject(Kind(perr))
		uc.auditPriceMismatch(ctx, cmd.BuyerID, perr)
		return nil, perr
	}
	if err := attempt.Advance(settlement.StatePriced); err != nil {
		return nil, err
	}

	if serr := precheckStock(priced, products); serr != nil {
		_ = attempt.Reject(Kind(serr))
		return nil, serr
	}
	if err := attempt.Advance(settlement.StateStockChecked); err != nil {
		return nil, err
	}

	// The one and only gateway call for this attempt. Its latency is not
	// covered by any lock, and it is never retried: charge idempotency is
	// not guaranteed by the provider.
	result, gerr := uc.authorize(ctx, total, cmd.PaymentToken)
	if gerr != nil {
		_ = attempt.Reject(Kind(gerr))
		return nil, gerr
	}
	if err := attempt.Advance(settlement.StatePaymentAuthorized); err != nil {
		return nil, err
	}
	span.AddEvent("payment.authorized",
		trace.WithAttributes(attribute.String("payment.transaction_id", result.TransactionID)),
	)

	orderID := uc.idGenerator.NewID()
	entity, derr := order.New(orderID, cmd.BuyerID, priced, order.Payment{
		TransactionID: result.TransactionID,
		AmountCents:   result.AmountCents,
		Status:        result.Status,
	})
	if derr == nil {
		derr = uc.orders.Insert(ctx, entity)
	}
	if derr != nil {
		return nil, uc.failPostPayment(ctx, attempt, orderID, cmd.BuyerID, result, priced,
			fmt.Errorf("persist order: %w", derr))
	}
	if err := attempt.Advance(settlement.StateOrderPersisted); err != nil {
		return nil, err
	}

	// Commit-time conditional decrement. The pre-check above was advisory;
	// this is the only authoritative oversell guard.
	if cerr := uc.stock.DecrementStock(ctx, decrements(entity.Lines)); cerr != nil {
		return nil, uc.failPostPayment(ctx, attempt, orderID, cmd.BuyerID, result, priced,
			fmt.Errorf("commit inventory: %w", cerr))
	}
	if err := attempt.Advance(settlement.StateInventoryCommitted); err != nil {
		return nil, err
	}

	uc.publish(ctx, settlement.NewCompletedEvent(entity))
	span.AddEvent("settlement.completed",
		trace.WithAttributes(attribute.String("order.id", entity.ID)),
	)

	return &SettleResult{
		OrderID:       entity.ID,
		State:         attempt.State(),
		TotalCents:    entity.TotalCents,
		TransactionID: entity.Payment.TransactionID,
		Lines:         entity.Lines,
	}, nil
}

// authorize performs the single charge attempt with gateway-facing metrics.
func (uc *SettleUseCase) authorize(ctx context.Context, amountCents int64, token string) (*payment.Result, error) {
	start := time.Now()
	result, err := uc.gateway.Authorize(ctx, amountCents, token)

	outcome := "success"
	if err != nil {
		outcome = Kind(err)
	}
	uc.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", gatewayEndpoint),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", gatewayEndpoint),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// failPostPayment converts a failure after a captured charge into the
// distinct reconciliation outcome: flag the attempt, log at error level with
// everything an operator needs, and publish the reconciliation event.
func (uc *SettleUseCase) failPostPayment(
	ctx context.Context,
	attempt *settlement.Attempt,
	orderID, buyerID string,
	result *payment.Result,
	lines []order.Line,
	cause error,
) error {
	commitErr := &PostPaymentCommitError{
		OrderID:       orderID,
		BuyerID:       buyerID,
		TransactionID: result.TransactionID,
		AmountCents:   result.AmountCents,
		Lines:         lines,
		Err:           cause,
	}
	_ = attempt.FlagReconciliation(cause.Error())

	logctx.FromOr(ctx, uc.log).Error("settlement_needs_reconciliation",
		observability.F("order_id", orderID),
		observability.F("buyer_id", buyerID),
		observability.F("transaction_id", result.TransactionID),
		observability.F("amount_cents", result.AmountCents),
		observability.F("line_count", len(lines)),
		observability.F("error", cause.Error()),
	)

	uc.publish(ctx, settlement.ReconciliationRequiredEvent{
		OrderID:       orderID,
		BuyerID:       buyerID,
		TransactionID: result.TransactionID,
		AmountCents:   result.AmountCents,
		Lines:         lines,
		Reason:        cause.Error(),
		OccurredAt:    time.Now().UTC(),
	})

	return commitErr
}

func (uc *SettleUseCase) auditPriceMismatch(ctx context.Context, buyerID string, err error) {
	mismatch, ok := err.(*PriceMismatchError)
	if !ok {
		return
	}
	uc.publish(ctx, settlement.PriceMismatchEvent{
		BuyerID:       buyerID,
		ProductID:     mismatch.ProductID,
		ExpectedCents: mismatch.ExpectedCents,
		ReceivedCents: mismatch.ReceivedCents,
		OccurredAt:    time.Now().UTC(),
	})
}

func (uc *SettleUseCase) publish(ctx context.Context, e outbox.Event) {
	if uc.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := uc.publisher.Publish(pubCtx, e); err != nil {
		logctx.FromOr(ctx, uc.log).Warn("settlement_event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}

// normalizeLines applies quantity defaulting and request-shape validation.
func normalizeLines(cmd SettleInput) ([]CartLine, error) {
	if cmd.BuyerID == "" {
		return nil, newValidation("buyer id is required")
	}
	if cmd.PaymentToken == "" {
		return nil, newValidation("payment token is required")
	}
	if len(cmd.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	lines := make([]CartLine, 0, len(cmd.Lines))
	for _, l := range cmd.Lines {
		if l.ProductID == "" {
			return nil, newValidation("product id is required")
		}
		if l.Quantity < 0 {
			return nil, newValidation("quantity must not be negative")
		}
		if l.Quantity == 0 {
			l.Quantity = 1
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func productIDs(lines []CartLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func decrements(lines []order.Line) []catalog.Decrement {
	out := make([]catalog.Decrement, 0, len(lines))
	for _, l := range lines {
		out = append(out, catalog.Decrement{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}
