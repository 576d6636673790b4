package models

// ActionType names an action a custodian can take on a transfer.
type ActionType string

// Off-chain actions append an event directly.
const (
	ActionAcknowledge          ActionType = "acknowledge"
	ActionSubmitDocuments      ActionType = "submit_documents"
	ActionApproveDocuments     ActionType = "approve_documents"
	ActionVerifyFinancial      ActionType = "verify_financial"
	ActionSendFunds            ActionType = "send_funds"
	ActionConfirmFundsReceived ActionType = "confirm_funds_received"
	ActionCancel               ActionType = "cancel"
)

// On-chain actions are routed through reconciliation.
const (
	ActionAgreeSend        ActionType = "agree_send"
	ActionAgreeReceive     ActionType = "agree_receive"
	ActionProvideFinancial ActionType = "provide_financial"
	ActionExecuteTransfer  ActionType = "execute_transfer"
	ActionMintTokens       ActionType = "mint_tokens"
	ActionBurnTokens       ActionType = "burn_tokens"
)

// OnChainActions lists contract actions in lifecycle order.
var OnChainActions = []ActionType{
	ActionAgreeSend,
	ActionAgreeReceive,
	ActionProvideFinancial,
	ActionExecuteTransfer,
	ActionMintTokens,
	ActionBurnTokens,
}

var actionEvents = map[ActionType]EventType{
	ActionAcknowledge:          EventRolloverAcknowledged,
	ActionSubmitDocuments:      EventDocumentsSubmitted,
	ActionApproveDocuments:     EventDocumentsApproved,
	ActionVerifyFinancial:      EventFinancialVerified,
	ActionSendFunds:            EventFundsSent,
	ActionConfirmFundsReceived: EventFundsReceived,
	ActionCancel:               EventRolloverCancelled,
	ActionAgreeSend:            EventSenderAgreed,
	ActionAgreeReceive:         EventReceiverAgreed,
	ActionProvideFinancial:     EventFinancialsProvided,
	ActionExecuteTransfer:      EventTransferExecuted,
	ActionMintTokens:           EventTokensMinted,
	ActionBurnTokens:           EventTokensBurned,
}

// IsValid reports whether a is a known action.
func (a ActionType) IsValid() bool {
	_, ok := actionEvents[a]
	return ok
}

// IsOnChain reports whether a must be submitted to the escrow contract.
func (a ActionType) IsOnChain() bool {
	switch a {
	case ActionAgreeSend, ActionAgreeReceive, ActionProvideFinancial,
		ActionExecuteTransfer, ActionMintTokens, ActionBurnTokens:
		return true
	}
	return false
}

// SuccessEvent is the event type recorded when a completes.
func (a ActionType) SuccessEvent() EventType {
	return actionEvents[a]
}

// SourceOnly reports whether only the source (sending) custodian may take a.
func (a ActionType) SourceOnly() bool {
	switch a {
	case ActionAgreeSend, ActionProvideFinancial, ActionExecuteTransfer, ActionMintTokens, ActionSendFunds:
		return true
	}
	return false
}

// DestinationOnly reports whether only the destination (receiving) custodian may take a.
func (a ActionType) DestinationOnly() bool {
	switch a {
	case ActionAgreeReceive, ActionBurnTokens, ActionConfirmFundsReceived:
		return true
	}
	return false
}

func (a ActionType) String() string { return string(a) }
