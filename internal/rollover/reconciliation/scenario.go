package reconciliation

import (
	"fmt"
	"strings"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/state"
)

// ScenarioKind classifies the relationship between the event log and the
// contract for one transfer.
type ScenarioKind string

const (
	ScenarioConsistent    ScenarioKind = "consistent"
	ScenarioUIBehindChain ScenarioKind = "ui_behind_chain"
	ScenarioChainBehindUI ScenarioKind = "chain_behind_ui"
)

// Scenario is the result of comparing derived facts against a snapshot. It
// lives for one pass; remediation records it in the log.
type Scenario struct {
	Kind ScenarioKind

	// LogMissing are actions the chain reflects that the log does not.
	LogMissing []models.ActionType

	// ChainMissing are actions the log claims that the chain never received.
	ChainMissing []models.ActionType

	// NeedsCompletion is set when the contract is Completed and the log has
	// no completion event.
	NeedsCompletion bool

	Implied  contract.State
	Observed contract.State
	Evidence string
}

// Assess compares the log's implied contract state with the chain's. A pass
// that finds the chain missing anything is chain_behind_ui, even when the log
// is also missing actions the chain has; both sides are remediated.
func Assess(facts *state.Facts, snap contract.Snapshot) Scenario {
	implied := state.ImpliedContractState(facts)
	observed := snap.ContractState
	sc := Scenario{
		Implied:         implied,
		Observed:        observed,
		LogMissing:      contract.Missing(implied, observed),
		ChainMissing:    contract.Missing(observed, implied),
		NeedsCompletion: observed == contract.StateCompleted && !facts.Completed,
	}
	switch {
	case len(sc.ChainMissing) > 0:
		sc.Kind = ScenarioChainBehindUI
	case len(sc.LogMissing) > 0 || sc.NeedsCompletion:
		sc.Kind = ScenarioUIBehindChain
	default:
		sc.Kind = ScenarioConsistent
	}
	sc.Evidence = sc.describe()
	return sc
}

// Diverged reports whether the pass needs remediation.
func (s Scenario) Diverged() bool {
	return s.Kind != ScenarioConsistent
}

func (s Scenario) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "log implies %s, contract reports %s", s.Implied, s.Observed)
	if len(s.LogMissing) > 0 {
		fmt.Fprintf(&b, "; log missing %s", joinActions(s.LogMissing))
	}
	if s.NeedsCompletion {
		b.WriteString("; log missing completion")
	}
	if len(s.ChainMissing) > 0 {
		fmt.Fprintf(&b, "; chain missing %s", joinActions(s.ChainMissing))
	}
	return b.String()
}

func joinActions(actions []models.ActionType) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}
