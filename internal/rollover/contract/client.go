package contract

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Snapshot is the contract's state for one transfer as read from the chain.
type Snapshot struct {
	TransferID      id.TransferID          `json:"transferId"`
	ContractState   State                  `json:"contractState"`
	SenderAgreed    bool                   `json:"senderAgreed"`
	ReceiverAgreed  bool                   `json:"receiverAgreed"`
	FinancialsHash  string                 `json:"financialsHash,omitempty"`
	CustodianLevels map[id.CustodianID]int `json:"custodianLevels,omitempty"`
	BlockNumber     uint64                 `json:"blockNumber,omitempty"`
}

// CustodianLevel returns the capability level (1..3) recorded for a custodian,
// defaulting to 1 when the contract holds none.
func (s Snapshot) CustodianLevel(custodianID id.CustodianID) int {
	if lvl, ok := s.CustodianLevels[custodianID]; ok && lvl >= 1 {
		return lvl
	}
	return 1
}

// TokenizationEligible reports whether both parties are at level 3.
func (s Snapshot) TokenizationEligible(source, destination id.CustodianID) bool {
	return s.CustodianLevel(source) >= 3 && s.CustodianLevel(destination) >= 3
}

// Params carries the inputs of a submission. Fields irrelevant to an action are ignored.
type Params struct {
	TransferID             id.TransferID
	CustodianID            id.CustodianID
	SourceCustodianID      id.CustodianID
	DestinationCustodianID id.CustodianID
	Amount                 string
	AccountRef             string
	FinancialsHash         string
}

// Receipt identifies a landed transaction.
type Receipt struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
}

// Transaction is an entry in the chain's recent history for a transfer.
type Transaction struct {
	TxHash      string         `json:"txHash"`
	Action      Action         `json:"action"`
	From        id.CustodianID `json:"from,omitempty"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   time.Time      `json:"timestamp"`
	Succeeded   bool           `json:"succeeded"`
}

// Client is the capability set of one contract version. Reads are safe for
// concurrent use; writes block until the transaction lands or ctx ends.
//
//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks Client
type Client interface {
	AgreeSend(ctx context.Context, p Params) (Receipt, error)
	AgreeReceive(ctx context.Context, p Params) (Receipt, error)
	ProvideFinancial(ctx context.Context, p Params) (Receipt, error)
	ExecuteTransfer(ctx context.Context, p Params) (Receipt, error)
	MintTokens(ctx context.Context, p Params) (Receipt, error)
	BurnTokens(ctx context.Context, p Params) (Receipt, error)
	GetState(ctx context.Context, transferID id.TransferID) (Snapshot, error)
	RecentTransactions(ctx context.Context, transferID id.TransferID, since time.Time) ([]Transaction, error)
}

// Submit dispatches action to the matching Client method.
func Submit(ctx context.Context, c Client, action Action, p Params) (Receipt, error) {
	switch action {
	case models.ActionAgreeSend:
		return c.AgreeSend(ctx, p)
	case models.ActionAgreeReceive:
		return c.AgreeReceive(ctx, p)
	case models.ActionProvideFinancial:
		return c.ProvideFinancial(ctx, p)
	case models.ActionExecuteTransfer:
		return c.ExecuteTransfer(ctx, p)
	case models.ActionMintTokens:
		return c.MintTokens(ctx, p)
	case models.ActionBurnTokens:
		return c.BurnTokens(ctx, p)
	}
	return Receipt{}, NewChainError(KindInvalid, fmt.Sprintf("unsupported contract action %q", action), nil)
}

// FinancialsHash is the keccak-256 commitment the contract stores for the
// financial details of a transfer.
func FinancialsHash(transferID id.TransferID, amount, accountRef string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(transferID))
	h.Write([]byte{0})
	h.Write([]byte(amount))
	h.Write([]byte{0})
	h.Write([]byte(accountRef))
	return fmt.Sprintf("0x%x", h.Sum(nil))
}
