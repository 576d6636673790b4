package models

// EventType is the closed set of facts the event log accepts. Writers may only
// append catalogued types; IsValid is checked at append time.
type EventType string

const (
	// Rollover lifecycle
	EventRolloverStarted        EventType = "rollover.started"
	EventRolloverAcknowledged   EventType = "rollover.acknowledged"
	EventRolloverParticipant    EventType = "rollover.participant_added"
	EventRolloverDetailsUpdated EventType = "rollover.details_updated"
	EventRolloverNoteAdded      EventType = "rollover.note_added"
	EventRolloverCompleted      EventType = "rollover.completed"
	EventRolloverCancelled      EventType = "rollover.cancelled"
	EventRolloverFailed         EventType = "rollover.failed"

	// Documents
	EventDocumentsRequested EventType = "documents.requested"
	EventDocumentsUploaded  EventType = "documents.uploaded"
	EventDocumentsSubmitted EventType = "documents.submitted"
	EventDocumentsApproved  EventType = "documents.approved"
	EventDocumentsRejected  EventType = "documents.rejected"
	EventDocumentsWithdrawn EventType = "documents.withdrawn"
	EventDocumentsExpired   EventType = "documents.expired"

	// Financial details (off-chain)
	EventFinancialRequested EventType = "financial.requested"
	EventFinancialSubmitted EventType = "financial.details_submitted"
	EventFinancialVerified  EventType = "financial.verified"
	EventFinancialRejected  EventType = "financial.rejected"
	EventFinancialAmended   EventType = "financial.amended"

	// On-chain escrow
	EventContractCreated        EventType = "blockchain.contract_created"
	EventSenderAgreed           EventType = "blockchain.sender_agreed"
	EventReceiverAgreed         EventType = "blockchain.receiver_agreed"
	EventFinancialsProvided     EventType = "blockchain.financials_provided"
	EventTransferExecuted       EventType = "blockchain.executed"
	EventTokensMinted           EventType = "blockchain.tokens_minted"
	EventTokensBurned           EventType = "blockchain.tokens_burned"
	EventTransactionSubmitted   EventType = "blockchain.transaction_submitted"
	EventTransactionConfirmed   EventType = "blockchain.transaction_confirmed"
	EventTransactionFailed      EventType = "blockchain.transaction_failed"
	EventContractStateSynced    EventType = "blockchain.state_synced"

	// Settlement
	EventSettlementInitiated    EventType = "settlement.initiated"
	EventSettlementInstructions EventType = "settlement.instructions_sent"
	EventFundsSent              EventType = "settlement.funds_sent"
	EventFundsReceived          EventType = "settlement.funds_received"
	EventSettlementReconciled   EventType = "settlement.reconciled"

	// Tokenization eligibility
	EventTokenizationEligible EventType = "tokenization.eligibility_confirmed"
	EventTokenizationDeclined EventType = "tokenization.declined"

	// Custodian wallets (bring-your-own-wallet)
	EventWalletLinked   EventType = "wallet.linked"
	EventWalletVerified EventType = "wallet.verified"

	// Custodian housekeeping
	EventCustodianContactUpdated EventType = "custodian.contact_updated"
	EventCustodianReminderSent   EventType = "custodian.reminder_sent"

	// Reconciliation audit trail
	EventDivergenceDetected EventType = "reconciliation.divergence_detected"
	EventEventsSynthesized  EventType = "reconciliation.events_synthesized"
	EventEventsSuperseded   EventType = "reconciliation.events_superseded"
	EventChainCaughtUp      EventType = "reconciliation.chain_caught_up"
)

// AllEventTypes lists every catalogued type in a stable order.
var AllEventTypes = []EventType{
	EventRolloverStarted,
	EventRolloverAcknowledged,
	EventRolloverParticipant,
	EventRolloverDetailsUpdated,
	EventRolloverNoteAdded,
	EventRolloverCompleted,
	EventRolloverCancelled,
	EventRolloverFailed,
	EventDocumentsRequested,
	EventDocumentsUploaded,
	EventDocumentsSubmitted,
	EventDocumentsApproved,
	EventDocumentsRejected,
	EventDocumentsWithdrawn,
	EventDocumentsExpired,
	EventFinancialRequested,
	EventFinancialSubmitted,
	EventFinancialVerified,
	EventFinancialRejected,
	EventFinancialAmended,
	EventContractCreated,
	EventSenderAgreed,
	EventReceiverAgreed,
	EventFinancialsProvided,
	EventTransferExecuted,
	EventTokensMinted,
	EventTokensBurned,
	EventTransactionSubmitted,
	EventTransactionConfirmed,
	EventTransactionFailed,
	EventContractStateSynced,
	EventSettlementInitiated,
	EventSettlementInstructions,
	EventFundsSent,
	EventFundsReceived,
	EventSettlementReconciled,
	EventTokenizationEligible,
	EventTokenizationDeclined,
	EventWalletLinked,
	EventWalletVerified,
	EventCustodianContactUpdated,
	EventCustodianReminderSent,
	EventDivergenceDetected,
	EventEventsSynthesized,
	EventEventsSuperseded,
	EventChainCaughtUp,
}

var eventTypeSet = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(AllEventTypes))
	for _, t := range AllEventTypes {
		m[t] = struct{}{}
	}
	return m
}()

// IsValid reports whether t belongs to the allow-list.
func (t EventType) IsValid() bool {
	_, ok := eventTypeSet[t]
	return ok
}

func (t EventType) String() string { return string(t) }

// IsBlockchain reports whether t records an on-chain fact.
func (t EventType) IsBlockchain() bool {
	switch t {
	case EventContractCreated, EventSenderAgreed, EventReceiverAgreed, EventFinancialsProvided,
		EventTransferExecuted, EventTokensMinted, EventTokensBurned, EventTransactionSubmitted,
		EventTransactionConfirmed, EventTransactionFailed, EventContractStateSynced:
		return true
	}
	return false
}
