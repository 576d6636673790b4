package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
)

func TestContract_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	c := New()
	p := contract.Params{TransferID: "t-1", CustodianID: "src", FinancialsHash: "0xabc"}

	for _, a := range []contract.Action{
		models.ActionAgreeReceive,
		models.ActionAgreeSend,
		models.ActionProvideFinancial,
		models.ActionExecuteTransfer,
		models.ActionMintTokens,
		models.ActionBurnTokens,
	} {
		_, err := contract.Submit(ctx, c, a, p)
		require.NoError(t, err, a)
	}

	snap, err := c.GetState(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StateBurned, snap.ContractState)
	assert.True(t, snap.SenderAgreed)
	assert.True(t, snap.ReceiverAgreed)
	assert.Equal(t, "0xabc", snap.FinancialsHash)

	txs, err := c.RecentTransactions(ctx, "t-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, txs, 6)
}

func TestContract_RejectsOutOfOrder(t *testing.T) {
	c := New()
	_, err := c.ExecuteTransfer(context.Background(), contract.Params{TransferID: "t-1"})
	require.Error(t, err)
	assert.Equal(t, contract.KindPrecondition, contract.KindOf(err))
	assert.Zero(t, c.Calls(models.ActionExecuteTransfer))
}

func TestContract_FailNextConsumedOnce(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.FailNext(models.ActionAgreeSend, contract.NewChainError(contract.KindUnavailable, "node down", nil))

	_, err := c.AgreeSend(ctx, contract.Params{TransferID: "t-1"})
	assert.Equal(t, contract.KindUnavailable, contract.KindOf(err))

	_, err = c.AgreeSend(ctx, contract.Params{TransferID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Calls(models.ActionAgreeSend))
}

func TestContract_ForceStateHasNoHistory(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.ForceState("t-1", contract.StateCompleted)

	snap, err := c.GetState(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StateCompleted, snap.ContractState)
	assert.True(t, snap.SenderAgreed)

	txs, err := c.RecentTransactions(ctx, "t-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestContract_LatencyRespectsContext(t *testing.T) {
	c := New(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.AgreeSend(ctx, contract.Params{TransferID: "t-1"})
	assert.Equal(t, contract.KindTimeout, contract.KindOf(err))
}

func TestContract_CustodianLevels(t *testing.T) {
	c := New()
	c.SetCustodianLevel("a", 3)
	c.SetCustodianLevel("b", 3)
	snap, err := c.GetState(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, snap.TokenizationEligible("a", "b"))
	assert.False(t, snap.TokenizationEligible("a", "c"))
}
