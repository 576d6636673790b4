package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustrails/internal/rollover/models"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	dup := Submission{ID: uuid.New(), TransferID: "t-1", Action: models.ActionAgreeSend, Attempt: 1, Result: ResultTimeout}
	require.NoError(t, store.Record(ctx, dup))
	require.NoError(t, store.Record(ctx, dup))
	require.NoError(t, store.Record(ctx, Submission{TransferID: "t-1", Action: models.ActionAgreeSend, Attempt: 2, Result: ResultLanded}))
	require.NoError(t, store.Record(ctx, Submission{TransferID: "t-2", Action: models.ActionAgreeSend, Attempt: 1, Result: ResultLanded}))

	subs, err := store.ListForTransfer(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, 1, subs[0].Attempt)
	assert.NotEqual(t, uuid.Nil, subs[1].ID)

	assert.Equal(t, 1, store.Count("t-1", models.ActionAgreeSend, ResultTimeout))
	assert.Equal(t, 1, store.Count("t-1", models.ActionAgreeSend, ResultLanded))
	assert.Zero(t, store.Count("t-1", models.ActionAgreeReceive, ResultLanded))

	subs[0].Attempt = 99
	again, err := store.ListForTransfer(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 1, again[0].Attempt)

	empty, err := store.ListForTransfer(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
