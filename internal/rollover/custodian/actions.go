package custodian

import (
	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/state"
)

type lookupInput struct {
	state      models.StateName
	isSource   bool
	my         models.Progress
	facts      *state.Facts
	singleSide bool
}

// rule returns the action for one (state, side) cell of the table, given the
// viewer's progress. An empty action means the viewer waits, with label saying why.
type rule func(in lookupInput) (models.ActionType, string)

type cell struct {
	state    models.StateName
	isSource bool
}

var table = map[cell]rule{
	{models.StateStarted, true}:  sourceStarted,
	{models.StateStarted, false}: do(models.ActionAcknowledge, "Acknowledge the transfer request"),

	{models.StateAcknowledged, true}:  submitDocuments,
	{models.StateAcknowledged, false}: waitFor("Waiting for the source custodian to submit documents"),
	{models.StateInProgress, true}:    submitDocuments,
	{models.StateInProgress, false}:   destinationInProgress,

	{models.StateAwaitingApproval, true}:  sourceApproval,
	{models.StateAwaitingApproval, false}: destinationApproval,

	{models.StateAwaitingSender, true}:    agree(models.ActionAgreeSend, "Authorize the transfer on-chain"),
	{models.StateAwaitingSender, false}:   agree(models.ActionAgreeReceive, "Authorize receipt on-chain"),
	{models.StateAwaitingReceiver, true}:  agree(models.ActionAgreeSend, "Authorize the transfer on-chain"),
	{models.StateAwaitingReceiver, false}: agree(models.ActionAgreeReceive, "Authorize receipt on-chain"),

	{models.StateAwaitingFinancialVerification, true}:  do(models.ActionProvideFinancial, "Provide financial details on-chain"),
	{models.StateAwaitingFinancialVerification, false}: waitFor("Waiting for the source custodian to provide financial details"),

	{models.StateReadyToRecord, true}:  do(models.ActionExecuteTransfer, "Record the transfer on-chain"),
	{models.StateReadyToRecord, false}: verifyFinancial,

	{models.StateAwaitingFunds, true}:  sendFunds,
	{models.StateAwaitingFunds, false}: waitFor("Waiting for funds to be sent"),

	{models.StateFundsInTransit, true}:  waitFor("Waiting for the destination custodian to confirm receipt"),
	{models.StateFundsInTransit, false}: receiveFunds,
}

var terminalLabels = map[models.StateName]string{
	models.StateCompleted: "Transfer completed",
	models.StateCancelled: "Transfer cancelled",
	models.StateFailed:    "Transfer failed",
}

// nextAction looks up the single action for the viewer. It never returns more
// than one action.
func nextAction(in lookupInput) (models.ActionType, string) {
	if label, ok := terminalLabels[in.state]; ok {
		return "", label
	}
	r, ok := table[cell{in.state, in.isSource}]
	if !ok {
		return "", "No action available"
	}
	return r(in)
}

func do(action models.ActionType, label string) rule {
	return func(lookupInput) (models.ActionType, string) { return action, label }
}

func waitFor(label string) rule {
	return func(lookupInput) (models.ActionType, string) { return "", label }
}

func sourceStarted(in lookupInput) (models.ActionType, string) {
	if in.singleSide {
		return submitDocuments(in)
	}
	return "", "Waiting for the destination custodian to acknowledge"
}

func submitDocuments(in lookupInput) (models.ActionType, string) {
	if in.my.DocumentsSubmitted {
		return "", "Waiting for document review"
	}
	return models.ActionSubmitDocuments, "Submit transfer documents"
}

// A transfer with no destination on the platform skips the destination steps.
func destinationInProgress(in lookupInput) (models.ActionType, string) {
	if !in.my.Acknowledged {
		return models.ActionAcknowledge, "Acknowledge the transfer request"
	}
	return "", "Waiting for the source custodian to submit documents"
}

// The destination reviews first; the source approves after it when two
// approvals are required.
func destinationApproval(in lookupInput) (models.ActionType, string) {
	if in.my.DocumentsApproved {
		return "", "Waiting for the source custodian to approve documents"
	}
	return models.ActionApproveDocuments, "Review and approve documents"
}

func sourceApproval(in lookupInput) (models.ActionType, string) {
	if !in.my.DocumentsSubmitted {
		return models.ActionSubmitDocuments, "Submit transfer documents"
	}
	if in.my.DocumentsApproved {
		return "", "Waiting for document approval"
	}
	if in.singleSide || in.facts.Party(in.facts.DestinationCustodianID).DocumentsApproved {
		return models.ActionApproveDocuments, "Approve documents"
	}
	return "", "Waiting for the destination custodian to review documents"
}

func agree(action models.ActionType, label string) rule {
	return func(in lookupInput) (models.ActionType, string) {
		if in.my.BlockchainAuthorized {
			return "", "Waiting for the other custodian to authorize on-chain"
		}
		return action, label
	}
}

func verifyFinancial(in lookupInput) (models.ActionType, string) {
	if in.my.FinancialVerified {
		return "", "Waiting for the source custodian to record the transfer"
	}
	return models.ActionVerifyFinancial, "Verify financial details"
}

func sendFunds(in lookupInput) (models.ActionType, string) {
	if in.facts.TokenizationEligible {
		return models.ActionMintTokens, "Mint settlement tokens"
	}
	return models.ActionSendFunds, "Send funds"
}

func receiveFunds(in lookupInput) (models.ActionType, string) {
	if in.facts.Minted {
		return models.ActionBurnTokens, "Burn settlement tokens to receive funds"
	}
	return models.ActionConfirmFundsReceived, "Confirm funds received"
}
