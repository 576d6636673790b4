// Package contract models the on-chain escrow state machine and the capability
// port every contract-version adapter implements.
//
// The precondition table here is the authority on whether an action is legal
// on-chain. Callers check it against a fresh Snapshot before every submission,
// regardless of what the event log says.
package contract

import (
	"fmt"
	"slices"

	"trustrails/internal/rollover/models"
)

// State is the escrow contract's discrete lifecycle state.
type State int

const (
	StateNone               State = 0
	StateReceiverAgreed     State = 1
	StateSenderAgreed       State = 2
	StateBothAgreed         State = 3
	StateFinancialsProvided State = 4
	StateExecuted           State = 5
	StateMinted             State = 6
	StateBurned             State = 7
	StateCompleted          State = 8
)

var stateNames = map[State]string{
	StateNone:               "None",
	StateReceiverAgreed:     "ReceiverAgreed",
	StateSenderAgreed:       "SenderAgreed",
	StateBothAgreed:         "BothAgreed",
	StateFinancialsProvided: "FinancialsProvided",
	StateExecuted:           "Executed",
	StateMinted:             "Minted",
	StateBurned:             "Burned",
	StateCompleted:          "Completed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsValid reports whether s is in 0..8.
func (s State) IsValid() bool {
	return s >= StateNone && s <= StateCompleted
}

// Action is an on-chain contract operation.
type Action = models.ActionType

var preconditions = map[Action][]State{
	models.ActionAgreeSend:        {StateNone, StateReceiverAgreed},
	models.ActionAgreeReceive:     {StateNone, StateSenderAgreed},
	models.ActionProvideFinancial: {StateBothAgreed},
	models.ActionExecuteTransfer:  {StateFinancialsProvided},
	models.ActionMintTokens:       {StateExecuted},
	models.ActionBurnTokens:       {StateMinted},
}

// Preconditions returns the states in which action may be submitted.
func Preconditions(action Action) []State {
	return slices.Clone(preconditions[action])
}

// IsContractAction reports whether action has an entry in the precondition table.
func IsContractAction(action Action) bool {
	_, ok := preconditions[action]
	return ok
}

// CanApply reports whether action is legal in state s.
func CanApply(action Action, s State) bool {
	return slices.Contains(preconditions[action], s)
}

// Apply returns the state the contract moves to after action succeeds in s.
func Apply(action Action, s State) (State, error) {
	if !CanApply(action, s) {
		return s, fmt.Errorf("action %s not permitted in contract state %s", action, s)
	}
	switch action {
	case models.ActionAgreeSend:
		if s == StateReceiverAgreed {
			return StateBothAgreed, nil
		}
		return StateSenderAgreed, nil
	case models.ActionAgreeReceive:
		if s == StateSenderAgreed {
			return StateBothAgreed, nil
		}
		return StateReceiverAgreed, nil
	case models.ActionProvideFinancial:
		return StateFinancialsProvided, nil
	case models.ActionExecuteTransfer:
		return StateExecuted, nil
	case models.ActionMintTokens:
		return StateMinted, nil
	case models.ActionBurnTokens:
		return StateBurned, nil
	}
	return s, fmt.Errorf("unknown contract action %s", action)
}

// Satisfied reports whether the effect of action is already reflected in s,
// i.e. the contract is at or past the state the action would produce.
func Satisfied(action Action, s State) bool {
	switch action {
	case models.ActionAgreeSend:
		return s == StateSenderAgreed || s >= StateBothAgreed
	case models.ActionAgreeReceive:
		return s == StateReceiverAgreed || s >= StateBothAgreed
	case models.ActionProvideFinancial:
		return s >= StateFinancialsProvided
	case models.ActionExecuteTransfer:
		return s >= StateExecuted
	case models.ActionMintTokens:
		return s >= StateMinted
	case models.ActionBurnTokens:
		return s >= StateBurned
	}
	return false
}

// Missing returns, in lifecycle order, the actions whose effect is reflected in
// the later state but not in the earlier one. Token actions are omitted when the
// later state is StateCompleted: a completed contract does not reveal whether
// settlement went through tokens.
func Missing(from, to State) []Action {
	var out []Action
	for _, a := range models.OnChainActions {
		if to == StateCompleted && (a == models.ActionMintTokens || a == models.ActionBurnTokens) {
			continue
		}
		if Satisfied(a, to) && !Satisfied(a, from) {
			out = append(out, a)
		}
	}
	return out
}
