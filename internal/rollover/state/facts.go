package state

import (
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// foldClass is the role an event type plays in derivation.
type foldClass int

const (
	classUnknown foldClass = iota
	classInformational
	classActivity
	classAcknowledged
	classDocumentsSubmitted
	classDocumentsApproved
	classFinancialVerified
	classSenderAgreed
	classReceiverAgreed
	classFinancialsProvided
	classExecuted
	classFundsSent
	classFundsReceived
	classMinted
	classBurned
	classTerminalCompleted
	classTerminalCancelled
	classTerminalFailed
	classSupersession
	classTxSubmitted
	classTxResolved
	classTokenizationEligible
	classTokenizationDeclined
	classParticipant
	classStarted
)

// classify maps every catalogued event type to its fold class. The switch lists
// every type explicitly; a type added to the catalogue without a case here
// classifies as classUnknown, which the catalogue test rejects.
func classify(t models.EventType) foldClass {
	switch t {
	case models.EventRolloverStarted:
		return classStarted
	case models.EventRolloverAcknowledged:
		return classAcknowledged
	case models.EventRolloverParticipant:
		return classParticipant
	case models.EventRolloverDetailsUpdated,
		models.EventRolloverNoteAdded:
		return classInformational
	case models.EventRolloverCompleted:
		return classTerminalCompleted
	case models.EventRolloverCancelled:
		return classTerminalCancelled
	case models.EventRolloverFailed,
		models.EventTransactionFailed:
		return classTerminalFailed

	case models.EventDocumentsRequested,
		models.EventDocumentsUploaded,
		models.EventDocumentsRejected,
		models.EventDocumentsWithdrawn,
		models.EventDocumentsExpired:
		return classActivity
	case models.EventDocumentsSubmitted:
		return classDocumentsSubmitted
	case models.EventDocumentsApproved:
		return classDocumentsApproved

	case models.EventFinancialRequested,
		models.EventFinancialSubmitted,
		models.EventFinancialRejected,
		models.EventFinancialAmended:
		return classActivity
	case models.EventFinancialVerified:
		return classFinancialVerified

	case models.EventContractCreated,
		models.EventContractStateSynced:
		return classInformational
	case models.EventSenderAgreed:
		return classSenderAgreed
	case models.EventReceiverAgreed:
		return classReceiverAgreed
	case models.EventFinancialsProvided:
		return classFinancialsProvided
	case models.EventTransferExecuted:
		return classExecuted
	case models.EventTokensMinted:
		return classMinted
	case models.EventTokensBurned:
		return classBurned
	case models.EventTransactionSubmitted:
		return classTxSubmitted
	case models.EventTransactionConfirmed:
		return classTxResolved

	case models.EventSettlementInitiated,
		models.EventSettlementInstructions:
		return classActivity
	case models.EventFundsSent:
		return classFundsSent
	case models.EventFundsReceived:
		return classFundsReceived
	case models.EventSettlementReconciled:
		return classInformational

	case models.EventTokenizationEligible:
		return classTokenizationEligible
	case models.EventTokenizationDeclined:
		return classTokenizationDeclined

	case models.EventWalletLinked,
		models.EventWalletVerified:
		return classActivity

	case models.EventCustodianContactUpdated,
		models.EventCustodianReminderSent:
		return classInformational

	case models.EventDivergenceDetected,
		models.EventEventsSynthesized,
		models.EventChainCaughtUp:
		return classInformational
	case models.EventEventsSuperseded:
		return classSupersession
	}
	return classUnknown
}

// PartyFacts are the milestones recorded by one custodian.
type PartyFacts struct {
	Acknowledged       bool
	DocumentsSubmitted bool
	DocumentsApproved  bool
	FinancialVerified  bool
	SenderAgreed       bool
	ReceiverAgreed     bool
}

// Facts is the folded summary of a transfer's effective events.
type Facts struct {
	Completed bool
	Cancelled bool
	Failed    bool

	Burned        bool
	Minted        bool
	FundsReceived bool
	FundsSent     bool
	Executed      bool

	SenderAgreed       bool
	ReceiverAgreed     bool
	FinancialsProvided bool

	DocumentsSubmitted bool
	Approvers          map[id.CustodianID]struct{}
	Custodians         map[id.CustodianID]struct{}

	Started      bool
	Acknowledged bool
	Activity     bool

	TokenizationEligible bool

	SourceCustodianID      id.CustodianID
	DestinationCustodianID id.CustodianID

	Parties map[id.CustodianID]*PartyFacts

	// PendingActions holds on-chain actions with a submitted transaction that
	// has not been confirmed, failed or superseded by its success event.
	PendingActions map[models.ActionType]string

	Superseded map[id.EventID]struct{}
	LastEvent  id.EventID
}

// RequiredApprovals is 2 when at least two distinct custodians appear in the
// events, otherwise 1.
func (f *Facts) RequiredApprovals() int {
	if len(f.Custodians) >= 2 {
		return 2
	}
	return 1
}

// DocumentsApproved reports whether the document gate is open.
func (f *Facts) DocumentsApproved() bool {
	return len(f.Approvers) >= f.RequiredApprovals()
}

// Party returns the milestones of custodianID, never nil.
func (f *Facts) Party(custodianID id.CustodianID) PartyFacts {
	if p, ok := f.Parties[custodianID]; ok {
		return *p
	}
	return PartyFacts{}
}

func (f *Facts) party(custodianID id.CustodianID) *PartyFacts {
	p, ok := f.Parties[custodianID]
	if !ok {
		p = &PartyFacts{}
		f.Parties[custodianID] = p
	}
	return p
}

func (f *Facts) addCustodian(c id.CustodianID) {
	if !c.IsNil() {
		f.Custodians[c] = struct{}{}
	}
}

// SupersededIDs collects every event id named by a supersession event.
func SupersededIDs(events []models.Event) map[id.EventID]struct{} {
	out := make(map[id.EventID]struct{})
	for _, e := range events {
		if e.Type != models.EventEventsSuperseded {
			continue
		}
		for _, sid := range e.Payload.SupersededEventIDs {
			out[sid] = struct{}{}
		}
	}
	return out
}

// Effective drops superseded events, preserving order.
func Effective(events []models.Event) []models.Event {
	superseded := SupersededIDs(events)
	if len(superseded) == 0 {
		return events
	}
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if _, gone := superseded[e.ID]; gone {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Analyze folds ordered events into Facts. Superseded events are ignored.
func Analyze(events []models.Event) Facts {
	f := Facts{
		Approvers:      make(map[id.CustodianID]struct{}),
		Custodians:     make(map[id.CustodianID]struct{}),
		Parties:        make(map[id.CustodianID]*PartyFacts),
		PendingActions: make(map[models.ActionType]string),
		Superseded:     SupersededIDs(events),
	}

	for _, e := range events {
		if _, gone := f.Superseded[e.ID]; gone {
			continue
		}
		f.LastEvent = e.ID
		actor := e.ActorCustodianID
		f.addCustodian(actor)
		f.addCustodian(e.Payload.SourceCustodianID)
		f.addCustodian(e.Payload.DestinationCustodianID)

		switch classify(e.Type) {
		case classStarted:
			f.Started = true
			if f.SourceCustodianID.IsNil() {
				f.SourceCustodianID = e.Payload.SourceCustodianID
				if f.SourceCustodianID.IsNil() {
					f.SourceCustodianID = actor
				}
			}
			if f.DestinationCustodianID.IsNil() {
				f.DestinationCustodianID = e.Payload.DestinationCustodianID
			}
			if !f.SourceCustodianID.IsNil() {
				f.party(f.SourceCustodianID).Acknowledged = true
			}
		case classParticipant:
			if f.DestinationCustodianID.IsNil() && !e.Payload.DestinationCustodianID.IsNil() {
				f.DestinationCustodianID = e.Payload.DestinationCustodianID
			}
		case classAcknowledged:
			f.Acknowledged = true
			if !actor.IsNil() {
				f.party(actor).Acknowledged = true
			}
		case classActivity:
			f.Activity = true
		case classDocumentsSubmitted:
			f.DocumentsSubmitted = true
			if !actor.IsNil() {
				f.party(actor).DocumentsSubmitted = true
			}
		case classDocumentsApproved:
			f.DocumentsSubmitted = true
			if !actor.IsNil() {
				f.Approvers[actor] = struct{}{}
				f.party(actor).DocumentsApproved = true
			}
		case classFinancialVerified:
			f.Activity = true
			if !actor.IsNil() {
				f.party(actor).FinancialVerified = true
			}
		case classSenderAgreed:
			f.SenderAgreed = true
			if !actor.IsNil() {
				f.party(actor).SenderAgreed = true
			}
			delete(f.PendingActions, models.ActionAgreeSend)
		case classReceiverAgreed:
			f.ReceiverAgreed = true
			if !actor.IsNil() {
				f.party(actor).ReceiverAgreed = true
			}
			delete(f.PendingActions, models.ActionAgreeReceive)
		case classFinancialsProvided:
			f.FinancialsProvided = true
			delete(f.PendingActions, models.ActionProvideFinancial)
		case classExecuted:
			f.Executed = true
			delete(f.PendingActions, models.ActionExecuteTransfer)
		case classMinted:
			f.Minted = true
			delete(f.PendingActions, models.ActionMintTokens)
		case classBurned:
			f.Burned = true
			delete(f.PendingActions, models.ActionBurnTokens)
		case classFundsSent:
			f.FundsSent = true
		case classFundsReceived:
			f.FundsReceived = true
		case classTerminalCompleted:
			f.Completed = true
		case classTerminalCancelled:
			f.Cancelled = true
		case classTerminalFailed:
			f.Failed = true
			f.resolvePending(e)
		case classTxSubmitted:
			if e.Payload.Action.IsOnChain() {
				f.PendingActions[e.Payload.Action] = e.Payload.TxHash
			}
		case classTxResolved:
			f.resolvePending(e)
		case classTokenizationEligible:
			f.TokenizationEligible = true
		case classTokenizationDeclined:
			f.TokenizationEligible = false
		case classSupersession, classInformational, classUnknown:
		}
	}
	return f
}

func (f *Facts) resolvePending(e models.Event) {
	if e.Payload.Action != "" {
		delete(f.PendingActions, e.Payload.Action)
		return
	}
	for action, hash := range f.PendingActions {
		if hash != "" && hash == e.Payload.TxHash {
			delete(f.PendingActions, action)
		}
	}
}
