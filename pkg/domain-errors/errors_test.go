package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "transfer not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches wrapped code through fmt wrapping", func(t *testing.T) {
		inner := New(CodePrecondition, "contract state does not permit action")
		outer := fmt.Errorf("execute: %w", Wrap(inner, CodeConflict, "reconciliation failed"))
		assert.True(t, HasCode(outer, CodeConflict))
		assert.True(t, HasCode(outer, CodePrecondition))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(CodeInvalidInput))
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(CodePrecondition))
	assert.Equal(t, http.StatusPaymentRequired, ToHTTPStatus(CodeInsufficientFunds))
	assert.Equal(t, http.StatusTooManyRequests, ToHTTPStatus(CodeTooManyRequests))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(Code("unknown")))
}
