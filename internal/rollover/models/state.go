package models

import (
	"time"

	id "trustrails/pkg/domain"
)

// StateName is one of the 13 canonical lifecycle states of a transfer.
type StateName string

const (
	StateStarted                       StateName = "started"
	StateAcknowledged                  StateName = "acknowledged"
	StateAwaitingFinancialVerification StateName = "awaiting_financial_verification"
	StateInProgress                    StateName = "in_progress"
	StateAwaitingApproval              StateName = "awaiting_approval"
	StateAwaitingSender                StateName = "awaiting_sender"
	StateAwaitingReceiver              StateName = "awaiting_receiver"
	StateReadyToRecord                 StateName = "ready_to_record"
	StateAwaitingFunds                 StateName = "awaiting_funds"
	StateFundsInTransit                StateName = "funds_in_transit"
	StateCompleted                     StateName = "completed"
	StateFailed                        StateName = "failed"
	StateCancelled                     StateName = "cancelled"
)

// AllStates lists the canonical states in lifecycle order.
var AllStates = []StateName{
	StateStarted,
	StateAcknowledged,
	StateInProgress,
	StateAwaitingApproval,
	StateAwaitingSender,
	StateAwaitingReceiver,
	StateAwaitingFinancialVerification,
	StateReadyToRecord,
	StateAwaitingFunds,
	StateFundsInTransit,
	StateCompleted,
	StateFailed,
	StateCancelled,
}

// IsTerminal reports whether no further action can change the state.
func (s StateName) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s StateName) String() string { return string(s) }

// CanonicalState is the derived, viewer-independent state of a transfer.
// It is recomputable from the event list at any time and never stored
// authoritatively.
type CanonicalState struct {
	TransferID         id.TransferID `json:"transferId"`
	CurrentState       StateName     `json:"currentState"`
	LastEventProcessed id.EventID    `json:"lastEventProcessed,omitempty"`
	DerivedAt          time.Time     `json:"derivedAt"`
}
