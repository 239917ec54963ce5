package worker

import (
	"context"

	"github.com/oakmall/storefront/internal/domain/outbox"
	"github.com/oakmall/storefront/internal/domain/settlement"
	"github.com/oakmall/storefront/internal/observability"
)

// Worker writes the audit trail for settlement outcomes. Price mismatches are
// logged as tampering signals, separate from ordinary validation noise, and
// counted so spikes show up on dashboards.
type Worker struct {
	subscriber outbox.Subscriber
	log        observability.Logger
	mismatches observability.Counter
}

func New(subscriber outbox.Subscriber, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		log:        tel.Logger().With(observability.F("component", "audit_worker")),
		mismatches: tel.Metrics().Counter(observability.MPriceMismatches),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(settlement.CompletedEvent{}.EventName(), w.handleCompleted)
	w.subscriber.Subscribe(settlement.PriceMismatchEvent{}.EventName(), w.handlePriceMismatch)
}

func (w *Worker) handleCompleted(ctx context.Context, e outbox.Event) error {
	_ = ctx
	evt, ok := e.(settlement.CompletedEvent)
	if !ok {
		return nil
	}
	w.log.Info("settlement_audited",
		observability.F("order_id", evt.OrderID),
		observability.F("buyer_id", evt.BuyerID),
		observability.F("total_cents", evt.TotalCents),
		observability.F("transaction_id", evt.TransactionID),
	)
	return nil
}

func (w *Worker) handlePriceMismatch(ctx context.Context, e outbox.Event) error {
	_ = ctx
	evt, ok := e.(settlement.PriceMismatchEvent)
	if !ok {
		return nil
	}
	w.mismatches.Add(1)
	w.log.Warn("price_tampering_suspected",
		observability.F("buyer_id", evt.BuyerID),
		observability.F("product_id", evt.ProductID),
		observability.F("expected_cents", evt.ExpectedCents),
		observability.F("received_cents", evt.ReceivedCents),
	)
	return nil
}
