package settlement

import "errors"

var ErrInvalidStateTransition = errors.New("settlement: invalid state transition")

type State string

const (
	StateReceived            State = "received"
	StateValidated           State = "validated"
	StatePriced              State = "priced"
	StateStockChecked        State = "stock_checked"
	StatePaymentAuthorized   State = "payment_authorized"
	StateOrderPersisted      State = "order_persisted"
	StateInventoryCommitted  State = "inventory_committed"
	StateRejected            State = "rejected"
	StateNeedsReconciliation State = "needs_reconciliation"
)

// next maps each non-terminal state to the only state a settlement may
// advance to. The pipeline is strictly linear.
var next = map[State]State{
	StateReceived:          StateValidated,
	StateValidated:         StatePriced,
	StatePriced:            StateStockChecked,
	StateStockChecked:      StatePaymentAuthorized,
	StatePaymentAuthorized: StateOrderPersisted,
	StateOrderPersisted:    StateInventoryCommitted,
}

// Attempt tracks a single settlement through its lifecycle. Failures before
// the gateway call terminate in Rejected with zero side effects; failures at
// or after payment authorization terminate in NeedsReconciliation, because a
// captured charge now exists without a fully consistent system state.
type Attempt struct {
	state  State
	reason string
}

func NewAttempt() *Attempt {
	return &Attempt{state: StateReceived}
}

func (a *Attempt) State() State          { return a.state }
func (a *Attempt) FailureReason() string { return a.reason }

func (a *Attempt) Terminal() bool {
	switch a.state {
	case StateInventoryCommitted, StateRejected, StateNeedsReconciliation:
		return true
	}
	return false
}

// Advance moves the attempt to the given state, which must be the direct
// successor of the current one.
func (a *Attempt) Advance(to State) error {
	if next[a.state] != to {
		return ErrInvalidStateTransition
	}
	a.state = to
	return nil
}

// Reject terminates the attempt before any charge was made. It is only legal
// while the gateway has not been called.
func (a *Attempt) Reject(reason string) error {
	switch a.state {
	case StateReceived, StateValidated, StatePriced, StateStockChecked:
		a.state = StateRejected
		a.reason = reason
		return nil
	}
	return ErrInvalidStateTransition
}

// FlagReconciliation terminates the attempt after a successful charge that
// could not be fully committed. Only legal once payment has been authorized.
func (a *Attempt) FlagReconciliation(reason string) error {
	switch a.state {
	case StatePaymentAuthorized, StateOrderPersisted:
		a.state = StateNeedsReconciliation
		a.reason = reason
		return nil
	}
	return ErrInvalidStateTransition
}
