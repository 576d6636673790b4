// Package state derives a transfer's canonical state from its event list.
//
// Derivation is a pure fold: the same ordered events always produce the same
// state. Rules are checked in a fixed order and the first match wins:
//
//  1. terminal events (completed > cancelled > failed)
//  2. token settlement (burn => completed, mint => funds_in_transit)
//  3. settlement (funds received => completed, funds sent => funds_in_transit)
//  4. on-chain execution => awaiting_funds
//  5. document approval gate (two approvals when two custodians take part)
//  6. two-sided agreement flow
//  7. started / acknowledged fallback
package state

import (
	"time"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Engine computes CanonicalState values.
type Engine struct {
	now func() time.Time
}

type Option func(*Engine)

// WithClock sets the source of DerivedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute derives the canonical state of a transfer from its ordered events.
func (e *Engine) Compute(transferID id.TransferID, events []models.Event) models.CanonicalState {
	facts := Analyze(events)
	return models.CanonicalState{
		TransferID:         transferID,
		CurrentState:       Derive(&facts),
		LastEventProcessed: facts.LastEvent,
		DerivedAt:          e.now().UTC(),
	}
}

// Derive applies the precedence rules to folded facts.
func Derive(f *Facts) models.StateName {
	// 1. terminal
	switch {
	case f.Completed:
		return models.StateCompleted
	case f.Cancelled:
		return models.StateCancelled
	case f.Failed:
		return models.StateFailed
	}

	// 2. token settlement
	if f.Burned {
		return models.StateCompleted
	}
	if f.Minted {
		return models.StateFundsInTransit
	}

	// 3. settlement
	if f.FundsReceived {
		return models.StateCompleted
	}
	if f.FundsSent {
		return models.StateFundsInTransit
	}

	// 4. execution
	if f.Executed {
		return models.StateAwaitingFunds
	}

	// 5. document gate guards the agreement flow
	if f.DocumentsApproved() {
		// 6. agreement flow
		switch {
		case f.SenderAgreed && f.ReceiverAgreed && f.FinancialsProvided:
			return models.StateReadyToRecord
		case f.SenderAgreed && f.ReceiverAgreed:
			return models.StateAwaitingFinancialVerification
		case f.SenderAgreed:
			return models.StateAwaitingReceiver
		default:
			return models.StateAwaitingSender
		}
	}
	if f.DocumentsSubmitted {
		return models.StateAwaitingApproval
	}

	// 7. fallback
	if f.Activity || f.SenderAgreed || f.ReceiverAgreed || f.FinancialsProvided {
		return models.StateInProgress
	}
	if f.Acknowledged {
		return models.StateAcknowledged
	}
	return models.StateStarted
}

// ImpliedContractState is the escrow state the effective events claim the
// chain is in. A completed transfer that was executed implies StateCompleted.
func ImpliedContractState(f *Facts) contract.State {
	switch {
	case f.Executed && f.Completed:
		return contract.StateCompleted
	case f.Burned:
		return contract.StateBurned
	case f.Minted:
		return contract.StateMinted
	case f.Executed:
		return contract.StateExecuted
	case f.FinancialsProvided:
		return contract.StateFinancialsProvided
	case f.SenderAgreed && f.ReceiverAgreed:
		return contract.StateBothAgreed
	case f.SenderAgreed:
		return contract.StateSenderAgreed
	case f.ReceiverAgreed:
		return contract.StateReceiverAgreed
	}
	return contract.StateNone
}

// HasSuccess reports whether an effective success event for action exists.
func HasSuccess(events []models.Event, action models.ActionType) bool {
	_, ok := LatestSuccess(events, action)
	return ok
}

// LatestSuccess returns the last effective success event for action.
func LatestSuccess(events []models.Event, action models.ActionType) (models.Event, bool) {
	want := action.SuccessEvent()
	if want == "" {
		return models.Event{}, false
	}
	superseded := SupersededIDs(events)
	var (
		found models.Event
		ok    bool
	)
	for _, e := range events {
		if e.Type != want {
			continue
		}
		if _, gone := superseded[e.ID]; gone {
			continue
		}
		found, ok = e, true
	}
	return found, ok
}
