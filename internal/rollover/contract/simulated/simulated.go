// Package simulated is an in-process escrow contract. It enforces the same
// precondition table as the deployed contract and keeps a per-transfer
// transaction history, which makes it the adapter of choice for local runs
// and for exercising reconciliation without a node.
package simulated

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	id "trustrails/pkg/domain"
)

// Version is the registry key for this adapter.
const Version = "simulated"

type escrow struct {
	state          contract.State
	senderAgreed   bool
	receiverAgreed bool
	financialsHash string
	history        []contract.Transaction
}

// Contract implements contract.Client in memory.
type Contract struct {
	mu      sync.Mutex
	escrows map[id.TransferID]*escrow
	levels  map[id.CustodianID]int
	faults  map[contract.Action][]error
	block   uint64
	nonce   uint64
	calls   map[contract.Action]int
	latency time.Duration
	now     func() time.Time
}

type Option func(*Contract)

// WithLatency delays every write, simulating confirmation time.
func WithLatency(d time.Duration) Option {
	return func(c *Contract) { c.latency = d }
}

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Contract) { c.now = now }
}

func New(opts ...Option) *Contract {
	c := &Contract{
		escrows: make(map[id.TransferID]*escrow),
		levels:  make(map[id.CustodianID]int),
		faults:  make(map[contract.Action][]error),
		calls:   make(map[contract.Action]int),
		block:   1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory adapts New to the registry.
func Factory(_ contract.AdapterConfig) (contract.Client, error) {
	return New(), nil
}

// SetCustodianLevel records a custodian's capability level.
func (c *Contract) SetCustodianLevel(custodianID id.CustodianID, level int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[custodianID] = level
}

// ForceState moves an escrow directly to s without recording history, the way a
// transaction sent outside this system would appear to an observer.
func (c *Contract) ForceState(transferID id.TransferID, s contract.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.escrowLocked(transferID)
	e.state = s
	e.senderAgreed = contract.Satisfied(models.ActionAgreeSend, s)
	e.receiverAgreed = contract.Satisfied(models.ActionAgreeReceive, s)
}

// FailNext queues err to be returned by the next call of action. Queued errors
// are consumed in order.
func (c *Contract) FailNext(action contract.Action, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[action] = append(c.faults[action], err)
}

// Calls returns how many transactions for action were accepted.
func (c *Contract) Calls(action contract.Action) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[action]
}

func (c *Contract) AgreeSend(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.submit(ctx, models.ActionAgreeSend, p)
}

func (c *Contract) AgreeReceive(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.submit(ctx, models.ActionAgreeReceive, p)
}

func (c *Contract) ProvideFinancial(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	if p.FinancialsHash == "" {
		return contract.Receipt{}, contract.NewChainError(contract.KindInvalid, "financials hash is required", nil)
	}
	return c.submit(ctx, models.ActionProvideFinancial, p)
}

func (c *Contract) ExecuteTransfer(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.submit(ctx, models.ActionExecuteTransfer, p)
}

func (c *Contract) MintTokens(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.submit(ctx, models.ActionMintTokens, p)
}

func (c *Contract) BurnTokens(ctx context.Context, p contract.Params) (contract.Receipt, error) {
	return c.submit(ctx, models.ActionBurnTokens, p)
}

func (c *Contract) GetState(ctx context.Context, transferID id.TransferID) (contract.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return contract.Snapshot{}, contract.NewChainError(contract.KindUnavailable, "read cancelled", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := contract.Snapshot{
		TransferID:      transferID,
		CustodianLevels: make(map[id.CustodianID]int, len(c.levels)),
		BlockNumber:     c.block,
	}
	for k, v := range c.levels {
		snap.CustodianLevels[k] = v
	}
	if e, ok := c.escrows[transferID]; ok {
		snap.ContractState = e.state
		snap.SenderAgreed = e.senderAgreed
		snap.ReceiverAgreed = e.receiverAgreed
		snap.FinancialsHash = e.financialsHash
	}
	return snap, nil
}

func (c *Contract) RecentTransactions(ctx context.Context, transferID id.TransferID, since time.Time) ([]contract.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, contract.NewChainError(contract.KindUnavailable, "read cancelled", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.escrows[transferID]
	if !ok {
		return nil, nil
	}
	var out []contract.Transaction
	for _, tx := range e.history {
		if !tx.Timestamp.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (c *Contract) submit(ctx context.Context, action contract.Action, p contract.Params) (contract.Receipt, error) {
	if p.TransferID == "" {
		return contract.Receipt{}, contract.NewChainError(contract.KindInvalid, "transfer id is required", nil)
	}
	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return contract.Receipt{}, contract.NewChainError(contract.KindTimeout, "waiting for confirmation", ctx.Err())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if q := c.faults[action]; len(q) > 0 {
		c.faults[action] = q[1:]
		return contract.Receipt{}, q[0]
	}

	e := c.escrowLocked(p.TransferID)
	next, err := contract.Apply(action, e.state)
	if err != nil {
		return contract.Receipt{}, contract.NewChainError(contract.KindPrecondition, "execution reverted", err)
	}

	c.block++
	c.nonce++
	receipt := contract.Receipt{
		TxHash:      txHash(p.TransferID, action, c.nonce),
		BlockNumber: c.block,
	}
	e.state = next
	switch action {
	case models.ActionAgreeSend:
		e.senderAgreed = true
	case models.ActionAgreeReceive:
		e.receiverAgreed = true
	case models.ActionProvideFinancial:
		e.financialsHash = p.FinancialsHash
	}
	e.history = append(e.history, contract.Transaction{
		TxHash:      receipt.TxHash,
		Action:      action,
		From:        p.CustodianID,
		BlockNumber: receipt.BlockNumber,
		Timestamp:   c.now(),
		Succeeded:   true,
	})
	c.calls[action]++
	return receipt, nil
}

func (c *Contract) escrowLocked(transferID id.TransferID) *escrow {
	e, ok := c.escrows[transferID]
	if !ok {
		e = &escrow{}
		c.escrows[transferID] = e
	}
	return e
}

func txHash(transferID id.TransferID, action contract.Action, nonce uint64) string {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s|%s|%d", transferID, action, nonce)
	return fmt.Sprintf("0x%x", h.Sum(nil))
}
