package reconciliation

import (
	"context"
	"fmt"

	"github.com/oakmall/storefront/internal/domain/reconciliation"
	"github.com/oakmall/storefront/internal/domain/settlement"
	"github.com/oakmall/storefront/internal/observability"
	"github.com/oakmall/storefront/internal/observability/logctx"
)

type IDGenerator interface {
	NewID() string
}

// Service records captured-but-uncommitted payments in the reconciliation
// journal. Entries are append-only; resolving them is an operator action, not
// an automated one.
type Service struct {
	journal     reconciliation.Journal
	idGenerator IDGenerator
	log         observability.Logger
	entries     observability.Counter // reconciliation_entries_total
}

func NewService(journal reconciliation.Journal, idGen IDGenerator, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		journal:     journal,
		idGenerator: idGen,
		log:         tel.Logger().With(observability.F("component", "reconciliation_service")),
		entries:     tel.Metrics().Counter(observability.MReconciliationEvents),
	}
}

// Record appends a journal entry for a settlement that needs manual follow-up.
func (s *Service) Record(ctx context.Context, evt settlement.ReconciliationRequiredEvent) (*reconciliation.Entry, error) {
	entry := &reconciliation.Entry{
		ID:            s.idGenerator.NewID(),
		OrderID:       evt.OrderID,
		BuyerID:       evt.BuyerID,
		TransactionID: evt.TransactionID,
		AmountCents:   evt.AmountCents,
		Lines:         evt.Lines,
		Reason:        evt.Reason,
		RecordedAt:    evt.OccurredAt,
	}

	if err := s.journal.Append(ctx, entry); err != nil {
		// Losing a reconciliation record would hide a captured charge, so
		// failures here are loud even though we cannot do more than log.
		logctx.FromOr(ctx, s.log).Error("reconciliation_append_failed",
			observability.F("transaction_id", evt.TransactionID),
			observability.F("buyer_id", evt.BuyerID),
			observability.F("error", err.Error()),
		)
		return nil, fmt.Errorf("reconciliation: append: %w", err)
	}

	s.entries.Add(1, observability.L("reason", "post_payment_commit"))
	logctx.FromOr(ctx, s.log).Error("reconciliation_entry_recorded",
		observability.F("entry_id", entry.ID),
		observability.F("order_id", entry.OrderID),
		observability.F("buyer_id", entry.BuyerID),
		observability.F("transaction_id", entry.TransactionID),
		observability.F("amount_cents", entry.AmountCents),
		observability.F("line_count", len(entry.Lines)),
		observability.F("reason", entry.Reason),
	)
	return entry, nil
}

// Pending lists unresolved journal entries for operator tooling.
func (s *Service) Pending(ctx context.Context) ([]*reconciliation.Entry, error) {
	return s.journal.List(ctx)
}
