// Package rpc adapts contract v1 escrows exposed through a JSON-RPC signing
// gateway. The gateway holds custodian keys (platform-managed or BYOW) and
// waits for one confirmation before answering a write.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Version is the registry key for this adapter.
const Version = "v1"

// JSON-RPC error codes the gateway uses.
const (
	codeExecutionReverted = 3
	codeServerError       = -32000
	codeInvalidParams     = -32602
)

type caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Client talks to the escrow gateway.
type Client struct {
	rpc     caller
	address common.Address
}

// Dial connects to the gateway at url for the escrow deployed at address.
func Dial(ctx context.Context, url, address string) (*Client, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid escrow address %q", address)
	}
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial escrow gateway: %w", err)
	}
	return &Client{rpc: c, address: common.HexToAddress(address)}, nil
}

// NewWithClient wraps an existing connection.
func NewWithClient(c *gethrpc.Client, address string) (*Client, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid escrow address %q", address)
	}
	return &Client{rpc: c, address: common.HexToAddress(address)}, nil
}

// Factory adapts Dial to the registry.
func Factory(cfg contract.AdapterConfig) (contract.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return Dial(ctx, cfg.GatewayURL, cfg.Address)
}

func (c *Client) Close() {
	c.rpc.Close()
}

type submitArgs struct {
	Escrow               common.Address `json:"escrow"`
	TransferID           string         `json:"transferId"`
	Custodian            string         `json:"custodian"`
	SourceCustodian      string         `json:"sourceCustodian,omitempty"`
	DestinationCustodian string         `json:"destinationCustodian,omitempty"`
	Amount               string         `json:"amount,omitempty"`
	FinancialsHash       *common.Hash   `json:"financialsHash,omitempty"`
}

type receiptResult struct {
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
}

type stateResult struct {
	State           hexutil.Uint64   `json:"state"`
	SenderAgreed    bool             `json:"senderAgreed"`
	ReceiverAgreed  bool             `json:"receiverAgreed"`
	FinancialsHash  *common.Hash     `json:"financialsHash"`
	CustodianLevels map[string]uint8 `json:"custodianLevels"`
	BlockNumber     hexutil.Uint64   `json:"blockNumber"`
}

type txResult struct {
	TxHash      common.Hash    `json:"txHash"`
	Method      string         `json:"method"`
	From        string         `json:"custodian"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	Timestamp   hexutil.Uint64 `json:"timestamp"`
	Status      hexutil.Uint64 `json:"status"`
}

var methods = map[contract.Action]string{
	models.ActionAgreeSend:        "escrow_agreeSend",
	models.ActionAgreeReceive:     "escrow_agreeReceive",
	models.ActionProvideFinancial: "escrow_provideFinancial",
	models.ActionExecuteTransfer:  "escrow_executeTransfer",
	models.ActionMintTokens:       "escrow_mintTokens",
	models.ActionBurnTokens:       "escrow_burnTokens",
}

func (c *Client) AgreeSend(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.send(ctx, models.ActionAgreeSend, p)
}

func (c *Client) AgreeReceive(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.send(ctx, models.ActionAgreeReceive, p)
}

func (c *Client) ProvideFinancial(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.send(ctx, models.ActionProvideFinancial, p)
}

func (c *Client) ExecuteTransfer(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.send(ctx, models.ActionExecuteTransfer, p)
}

func (c *Client) MintTokens(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.send(ctx, models.ActionMintTokens, p)
}

func (c *Client) BurnTokens(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.send(ctx, models.ActionBurnTokens, p)
}

func (c *Client) GetState(ctx context.Context, transferID id.TransferID) (contract.Snapshot, error) {
	var res stateResult
	if err := c.rpc.CallContext(ctx, &res, "escrow_getState", c.address, string(transferID)); err != nil {
		return contract.Snapshot{}, classify("get state", err)
	}
	s := contract.State(res.State)
	if !s.IsValid() {
		return contract.Snapshot{}, contract.NewChainError(contract.KindReverted, fmt.Sprintf("gateway returned state %d", res.State), nil)
	}
	snap := contract.Snapshot{
		TransferID:      transferID,
		ContractState:   s,
		SenderAgreed:    res.SenderAgreed,
		ReceiverAgreed:  res.ReceiverAgreed,
		CustodianLevels: make(map[id.CustodianID]int, len(res.CustodianLevels)),
		BlockNumber:     uint64(res.BlockNumber),
	}
	if res.FinancialsHash != nil && *res.FinancialsHash != (common.Hash{}) {
		snap.FinancialsHash = res.FinancialsHash.Hex()
	}
	for k, v := range res.CustodianLevels {
		snap.CustodianLevels[id.CustodianID(k)] = int(v)
	}
	return snap, nil
}

func (c *Client) RecentTransactions(ctx context.Context, transferID id.TransferID, since time.Time) ([]contract.Transaction, error) {
	var res []txResult
	if err := c.rpc.CallContext(ctx, &res, "escrow_recentTransactions", c.address, string(transferID), hexutil.Uint64(since.Unix())); err != nil {
		return nil, classify("recent transactions", err)
	}
	byMethod := make(map[string]contract.Action, len(methods))
	for a, m := range methods {
		byMethod[strings.TrimPrefix(m, "escrow_")] = a
	}
	out := make([]contract.Transaction, 0, len(res))
	for _, tx := range res {
		action, ok := byMethod[tx.Method]
		if !ok {
			continue
		}
		out = append(out, contract.Transaction{
			TxHash:      tx.TxHash.Hex(),
			Action:      action,
			From:        id.CustodianID(tx.From),
			BlockNumber: uint64(tx.BlockNumber),
			Timestamp:   time.Unix(int64(tx.Timestamp), 0).UTC(),
			Succeeded:   tx.Status == 1,
		})
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, action contract.Action, p contract.Params) (contract.Receipt, error) {
	args := submitArgs{
		Escrow:               c.address,
		TransferID:           string(p.TransferID),
		Custodian:            string(p.CustodianID),
		SourceCustodian:      string(p.SourceCustodianID),
		DestinationCustodian: string(p.DestinationCustodianID),
		Amount:               p.Amount,
	}
	if p.FinancialsHash != "" {
		raw, err := hexutil.Decode(p.FinancialsHash)
		if err != nil || len(raw) != common.HashLength {
			return contract.Receipt{}, contract.NewChainError(contract.KindInvalid, "financials hash must be 32 bytes hex", err)
		}
		h := common.BytesToHash(raw)
		args.FinancialsHash = &h
	}

	var res receiptResult
	if err := c.rpc.CallContext(ctx, &res, methods[action], args); err != nil {
		return contract.Receipt{}, classify(string(action), err)
	}
	if res.Status != 1 {
		return contract.Receipt{}, contract.NewChainError(contract.KindReverted, fmt.Sprintf("%s: transaction %s reverted", action, res.TxHash.Hex()), nil)
	}
	return contract.Receipt{TxHash: res.TxHash.Hex(), BlockNumber: uint64(res.BlockNumber)}, nil
}

// classify maps transport and gateway failures onto contract error kinds.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return contract.NewChainError(contract.KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return contract.NewChainError(contract.KindTimeout, op+" cancelled", err)
	}
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return contract.NewChainError(contract.KindUnavailable, op, err)
	}
	msg := strings.ToLower(rpcErr.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return contract.NewChainError(contract.KindInsufficientFunds, op, err)
	case rpcErr.ErrorCode() == codeInvalidParams:
		return contract.NewChainError(contract.KindInvalid, op, err)
	case rpcErr.ErrorCode() == codeExecutionReverted && strings.Contains(msg, "invalid state"):
		return contract.NewChainError(contract.KindPrecondition, op, err)
	case rpcErr.ErrorCode() == codeExecutionReverted:
		return contract.NewChainError(contract.KindReverted, op, err)
	case rpcErr.ErrorCode() == codeServerError && strings.Contains(msg, "timeout"):
		return contract.NewChainError(contract.KindTimeout, op, err)
	}
	return contract.NewChainError(contract.KindUnavailable, op, err)
}
