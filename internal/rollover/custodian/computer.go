// Package custodian computes the per-custodian view of a transfer: each side's
// progress and the single next action the viewer may take.
package custodian

import (
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/state"
	id "trustrails/pkg/domain"
)

// Computer builds CustodianView values on top of the state engine.
type Computer struct {
	engine *state.Engine
}

func NewComputer(engine *state.Engine) *Computer {
	if engine == nil {
		engine = state.NewEngine()
	}
	return &Computer{engine: engine}
}

// Compute returns the view of transferID for viewer from the ordered events.
func (c *Computer) Compute(transferID id.TransferID, events []models.Event, viewer id.CustodianID) models.CustodianView {
	cs := c.engine.Compute(transferID, events)
	facts := state.Analyze(events)
	return Build(cs, &facts, viewer)
}

// Build assembles a view from an already computed canonical state and facts.
func Build(cs models.CanonicalState, facts *state.Facts, viewer id.CustodianID) models.CustodianView {
	view := models.CustodianView{
		TransferID:   cs.TransferID,
		CustodianID:  viewer,
		CurrentState: cs.CurrentState,
	}

	role := RoleOf(facts, viewer)
	if role == RoleNone {
		view.WaitingLabel = "You are not a participant in this transfer"
		return view
	}
	view.IsSourceCustodian = role == RoleSource

	other := facts.DestinationCustodianID
	if role == RoleDestination {
		other = facts.SourceCustodianID
	}
	view.MyProgress = progress(facts, viewer, role)
	if !other.IsNil() {
		view.OtherProgress = progress(facts, other, opposite(role))
	}

	in := lookupInput{
		state:      cs.CurrentState,
		isSource:   role == RoleSource,
		my:         view.MyProgress,
		facts:      facts,
		singleSide: facts.DestinationCustodianID.IsNil(),
	}
	action, label := nextAction(in)
	if action == "" {
		view.WaitingLabel = label
		return view
	}

	next := &models.NextAction{
		ActionType: action,
		Label:      label,
		CanAct:     true,
		IsOnChain:  action.IsOnChain(),
	}
	if next.IsOnChain && len(facts.PendingActions) > 0 {
		next.CanAct = false
		next.Label = "Transaction pending confirmation"
		view.PendingTransaction = true
	}
	view.NextAction = next
	view.IsBlocking = next.CanAct
	return view
}

// Role is a custodian's side of a transfer.
type Role int

const (
	RoleNone Role = iota
	RoleSource
	RoleDestination
)

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDestination:
		return "destination"
	}
	return "none"
}

func opposite(r Role) Role {
	if r == RoleSource {
		return RoleDestination
	}
	return RoleSource
}

// RoleOf returns which side custodianID takes in the transfer.
func RoleOf(facts *state.Facts, custodianID id.CustodianID) Role {
	switch {
	case custodianID.IsNil():
		return RoleNone
	case custodianID == facts.SourceCustodianID:
		return RoleSource
	case custodianID == facts.DestinationCustodianID:
		return RoleDestination
	}
	return RoleNone
}

func progress(facts *state.Facts, custodianID id.CustodianID, role Role) models.Progress {
	p := facts.Party(custodianID)
	authorized := facts.SenderAgreed
	if role == RoleDestination {
		authorized = facts.ReceiverAgreed
	}
	return models.Progress{
		Acknowledged:         p.Acknowledged,
		DocumentsSubmitted:   p.DocumentsSubmitted,
		DocumentsApproved:    p.DocumentsApproved,
		FinancialVerified:    p.FinancialVerified,
		BlockchainAuthorized: authorized,
	}
}
