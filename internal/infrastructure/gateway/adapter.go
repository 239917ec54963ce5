package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oakmall/storefront/internal/domain/payment"
	"github.com/oakmall/storefront/internal/observability"
	"github.com/sony/gobreaker/v2"
)

// Charger is the callback-style client surface the adapter wraps.
type Charger interface {
	Charge(req ChargeRequest, done func(*ChargeResponse, error))
}

// Adapter turns the provider's callback API into the synchronous
// payment.Gateway contract, preserving the exactly-one-of {error, result}
// semantics. A circuit breaker fails fast when the provider is struggling;
// declines count as successful round trips and never trip it. The adapter
// adds no retries: the orchestrator calls Authorize at most once.
type Adapter struct {
	client  Charger
	breaker *gobreaker.CircuitBreaker[*ChargeResponse]
	log     observability.Logger
}

func NewAdapter(client Charger, tel observability.Observability) *Adapter {
	if tel == nil {
		tel = observability.Nop()
	}
	log := tel.Logger().With(observability.F("component", "payment_gateway"))

	breaker := gobreaker.NewCircuitBreaker[*ChargeResponse](gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("gateway_breaker_state_changed",
				observability.F("breaker", name),
				observability.F("from", from.String()),
				observability.F("to", to.String()),
			)
		},
	})

	return &Adapter{
		client:  client,
		breaker: breaker,
		log:     log,
	}
}

func (a *Adapter) Authorize(ctx context.Context, amountCents int64, token string) (*domain.Result, error) {
	resp, err := a.breaker.Execute(func() (*ChargeResponse, error) {
		return a.charge(ctx, amountCents, token)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", domain.ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}

	if resp.Status != StatusSucceeded {
		a.log.Info("charge_declined",
			observability.F("transaction_id", resp.TransactionID),
			observability.F("amount_cents", resp.AmountCents),
		)
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrDeclined, resp.TransactionID)
	}

	return &domain.Result{
		TransactionID: resp.TransactionID,
		AmountCents:   resp.AmountCents,
		Status:        resp.Status,
	}, nil
}

// charge bridges the callback into a synchronous call. The channel is
// buffered so the provider's single callback never blocks even if the caller
// already gave up on the context.
func (a *Adapter) charge(ctx context.Context, amountCents int64, token string) (*ChargeResponse, error) {
	type outcome struct {
		resp *ChargeResponse
		err  error
	}
	done := make(chan outcome, 1)

	a.client.Charge(ChargeRequest{AmountCents: amountCents, Token: token}, func(resp *ChargeResponse, err error) {
		done <- outcome{resp: resp, err: err}
	})

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		// The charge may still complete provider-side; surfacing this as
		// unavailable (not declined) keeps the caller from assuming no
		// charge exists.
		return nil, ctx.Err()
	}
}
