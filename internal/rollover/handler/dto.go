package handler

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"trustrails/internal/rollover/models"
	"trustrails/internal/rollover/reconciliation"
	"trustrails/internal/rollover/reconciliation/ledger"
	"trustrails/internal/rollover/service"
	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
)

type startRequest struct {
	TransferID             id.TransferID  `json:"transferId,omitempty"`
	DestinationCustodianID id.CustodianID `json:"destinationCustodianId,omitempty"`
	Amount                 string         `json:"amount,omitempty"`
	AccountRef             string         `json:"accountRef,omitempty"`
	CorrelationID          string         `json:"correlationId,omitempty"`
}

func (r startRequest) validate() error {
	if !r.TransferID.IsNil() {
		if _, err := id.ParseTransferID(string(r.TransferID)); err != nil {
			return err
		}
	}
	if !r.DestinationCustodianID.IsNil() {
		if _, err := id.ParseCustodianID(string(r.DestinationCustodianID)); err != nil {
			return err
		}
	}
	return nil
}

type actionRequest struct {
	Action        models.ActionType `json:"action"`
	Params        service.Params    `json:"params"`
	CorrelationID string            `json:"correlationId,omitempty"`
}

func (r actionRequest) validate() error {
	if r.Action == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "action is required")
	}
	if !r.Action.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown action %q", r.Action)
	}
	return nil
}

type chainEventRequest struct {
	Action      models.ActionType `json:"action"`
	CustodianID id.CustodianID    `json:"custodianId"`
	TxHash      string            `json:"txHash"`
	BlockNumber uint64            `json:"blockNumber"`
}

func (r chainEventRequest) validate() error {
	if !r.Action.IsOnChain() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "%q is not an on-chain action", r.Action)
	}
	b, err := hexutil.Decode(r.TxHash)
	if err != nil || len(b) != 32 {
		return dErrors.New(dErrors.CodeInvalidInput, "txHash must be a 32-byte hex string")
	}
	return nil
}

type ingestResponse struct {
	Recorded bool `json:"recorded"`
}

type reconcileResponse struct {
	Status   reconciliation.Status       `json:"status"`
	Scenario reconciliation.ScenarioKind `json:"scenario,omitempty"`
	TxHash   string                      `json:"txHash,omitempty"`
	Appended []models.Event              `json:"appended"`
}

func toReconcileResponse(o reconciliation.Outcome) reconcileResponse {
	appended := o.Appended
	if appended == nil {
		appended = []models.Event{}
	}
	return reconcileResponse{Status: o.Status, Scenario: o.Scenario, TxHash: o.TxHash, Appended: appended}
}

type eventsResponse struct {
	Events []models.Event `json:"events"`
}

type submissionsResponse struct {
	Submissions []ledger.Submission `json:"submissions"`
}

// errorResponse is the failure envelope. ErrorClass and Retryable are set
// when reconciliation classified the failure.
type errorResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorClass       string `json:"errorClass,omitempty"`
	Retryable        bool   `json:"retryable,omitempty"`
}
