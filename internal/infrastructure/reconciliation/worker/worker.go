package worker

import (
	"context"
	"fmt"

	appreconciliation "github.com/oakmall/storefront/internal/application/reconciliation"
	"github.com/oakmall/storefront/internal/domain/outbox"
	"github.com/oakmall/storefront/internal/domain/settlement"
	"github.com/oakmall/storefront/internal/observability"
)

// Worker moves reconciliation-required settlements off the request path and
// into the journal.
type Worker struct {
	subscriber outbox.Subscriber
	service    *appreconciliation.Service
	log        observability.Logger
}

func New(subscriber outbox.Subscriber, service *appreconciliation.Service, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		service:    service,
		log:        tel.Logger().With(observability.F("component", "reconciliation_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.service == nil {
		return
	}
	w.subscriber.Subscribe(settlement.ReconciliationRequiredEvent{}.EventName(), w.handleReconciliationRequired)
}

func (w *Worker) handleReconciliationRequired(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(settlement.ReconciliationRequiredEvent)
	if !ok {
		return nil
	}

	entry, err := w.service.Record(ctx, evt)
	if err != nil {
		w.log.Error("reconciliation_record_failed",
			observability.F("transaction_id", evt.TransactionID),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("reconciliation worker: record: %w", err)
	}

	w.log.Info("reconciliation_entry_journaled",
		observability.F("entry_id", entry.ID),
		observability.F("transaction_id", entry.TransactionID),
	)
	return nil
}
