package models

import id "trustrails/pkg/domain"

// Progress holds one party's milestones.
type Progress struct {
	Acknowledged         bool `json:"acknowledged"`
	DocumentsSubmitted   bool `json:"documentsSubmitted"`
	DocumentsApproved    bool `json:"documentsApproved"`
	FinancialVerified    bool `json:"financialVerified"`
	BlockchainAuthorized bool `json:"blockchainAuthorized"`
}

// NextAction describes the single action available to a viewer.
type NextAction struct {
	ActionType ActionType `json:"actionType"`
	Label      string     `json:"label"`
	CanAct     bool       `json:"canAct"`
	IsOnChain  bool       `json:"isOnChain"`
}

// CustodianView is the transfer as seen by one custodian.
type CustodianView struct {
	TransferID         id.TransferID  `json:"transferId"`
	CustodianID        id.CustodianID `json:"custodianId"`
	IsSourceCustodian  bool           `json:"isSourceCustodian"`
	CurrentState       StateName      `json:"currentState"`
	MyProgress         Progress       `json:"myProgress"`
	OtherProgress      Progress       `json:"otherProgress"`
	NextAction         *NextAction    `json:"nextAction"`
	WaitingLabel       string         `json:"waitingLabel,omitempty"`
	IsBlocking         bool           `json:"isBlocking"`
	PendingTransaction bool           `json:"pendingTransaction,omitempty"`
}
