package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustrails/internal/rollover/models"
)

func TestCanApply_PreconditionTable(t *testing.T) {
	allowed := map[Action][]State{
		models.ActionAgreeSend:        {StateNone, StateReceiverAgreed},
		models.ActionAgreeReceive:     {StateNone, StateSenderAgreed},
		models.ActionProvideFinancial: {StateBothAgreed},
		models.ActionExecuteTransfer:  {StateFinancialsProvided},
		models.ActionMintTokens:       {StateExecuted},
		models.ActionBurnTokens:       {StateMinted},
	}
	for action, states := range allowed {
		for s := StateNone; s <= StateCompleted; s++ {
			want := false
			for _, ok := range states {
				if ok == s {
					want = true
				}
			}
			assert.Equal(t, want, CanApply(action, s), "%s in %s", action, s)
		}
	}
}

func TestCanApply_OffChainActionNeverLegal(t *testing.T) {
	for s := StateNone; s <= StateCompleted; s++ {
		assert.False(t, CanApply(models.ActionSendFunds, s))
	}
	assert.False(t, IsContractAction(models.ActionAcknowledge))
	assert.True(t, IsContractAction(models.ActionBurnTokens))
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		from   State
		want   State
	}{
		{"sender first", models.ActionAgreeSend, StateNone, StateSenderAgreed},
		{"sender second", models.ActionAgreeSend, StateReceiverAgreed, StateBothAgreed},
		{"receiver first", models.ActionAgreeReceive, StateNone, StateReceiverAgreed},
		{"receiver second", models.ActionAgreeReceive, StateSenderAgreed, StateBothAgreed},
		{"financials", models.ActionProvideFinancial, StateBothAgreed, StateFinancialsProvided},
		{"execute", models.ActionExecuteTransfer, StateFinancialsProvided, StateExecuted},
		{"mint", models.ActionMintTokens, StateExecuted, StateMinted},
		{"burn", models.ActionBurnTokens, StateMinted, StateBurned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.action, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Apply(models.ActionExecuteTransfer, StateBothAgreed)
	assert.Error(t, err)
}

func TestSatisfied(t *testing.T) {
	assert.True(t, Satisfied(models.ActionAgreeSend, StateSenderAgreed))
	assert.False(t, Satisfied(models.ActionAgreeSend, StateReceiverAgreed))
	assert.True(t, Satisfied(models.ActionAgreeReceive, StateReceiverAgreed))
	assert.True(t, Satisfied(models.ActionAgreeReceive, StateCompleted))
	assert.False(t, Satisfied(models.ActionProvideFinancial, StateBothAgreed))
	assert.True(t, Satisfied(models.ActionExecuteTransfer, StateCompleted))
	assert.False(t, Satisfied(models.ActionBurnTokens, StateMinted))

	// an action that is satisfied can never also be applicable
	for _, a := range models.OnChainActions {
		for s := StateNone; s <= StateCompleted; s++ {
			if Satisfied(a, s) {
				assert.False(t, CanApply(a, s), "%s in %s", a, s)
			}
		}
	}
}

func TestMissing(t *testing.T) {
	t.Run("chain completed, log empty", func(t *testing.T) {
		assert.Equal(t, []Action{
			models.ActionAgreeSend,
			models.ActionAgreeReceive,
			models.ActionProvideFinancial,
			models.ActionExecuteTransfer,
		}, Missing(StateNone, StateCompleted))
	})
	t.Run("receiver only", func(t *testing.T) {
		assert.Equal(t, []Action{models.ActionAgreeReceive}, Missing(StateNone, StateReceiverAgreed))
	})
	t.Run("complete the pair", func(t *testing.T) {
		assert.Equal(t, []Action{models.ActionAgreeSend}, Missing(StateReceiverAgreed, StateBothAgreed))
	})
	t.Run("minted includes token step", func(t *testing.T) {
		assert.Equal(t, []Action{models.ActionExecuteTransfer, models.ActionMintTokens}, Missing(StateFinancialsProvided, StateMinted))
	})
	t.Run("nothing missing", func(t *testing.T) {
		assert.Empty(t, Missing(StateExecuted, StateExecuted))
		assert.Empty(t, Missing(StateExecuted, StateBothAgreed))
	})
	t.Run("every missing action is submittable in order", func(t *testing.T) {
		for from := StateNone; from <= StateMinted; from++ {
			for to := from; to <= StateBurned; to++ {
				cur := from
				for _, a := range Missing(from, to) {
					next, err := Apply(a, cur)
					require.NoError(t, err, "%s -> %s at %s", from, to, a)
					cur = next
				}
			}
		}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("v1", AdapterConfig{})
	assert.True(t, errors.Is(err, ErrUnknownVersion))

	r.Register("v1", func(cfg AdapterConfig) (Client, error) { return nil, nil })
	r.Register("v0", func(cfg AdapterConfig) (Client, error) { return nil, nil })
	_, err = r.New("v1", AdapterConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"v0", "v1"}, r.Versions())
}

func TestChainError(t *testing.T) {
	err := NewChainError(KindTimeout, "waiting for receipt", errors.New("deadline"))
	assert.True(t, err.Retryable)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, KindReverted, KindOf(errors.New("boom")))
	assert.False(t, NewChainError(KindInsufficientFunds, "fees", nil).Retryable)
}

func TestFinancialsHash(t *testing.T) {
	a := FinancialsHash("t-1", "1000", "acct")
	assert.Equal(t, a, FinancialsHash("t-1", "1000", "acct"))
	assert.NotEqual(t, a, FinancialsHash("t-1", "1001", "acct"))
	assert.Len(t, a, 66)
}
