package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trustrails/pkg/domain-errors"
)

// TestParseID_SecurityInvariants validates trust boundary parsing rules.
//
// Justification: transfer and custodian ids are interpolated into cache keys,
// lock keys and contract calls, so parsing must reject anything outside the
// opaque-id alphabet.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE events;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "rollover-1\x00suffix", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "rollover\u200B1", true},
		{"Whitespace only", "   ", true},
		{"Empty string", "", true},
		{"Redis key separator is allowed", "tenant:rollover-1", false},
		{"UUID", "550e8400-e29b-41d4-a716-446655440000", false},
		{"Dotted", "rollover.2024.0001", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransferID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	for _, input := range []string{"", "bad id", strings.Repeat("x", 200)} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errTransfer := ParseTransferID(input)
			_, errCustodian := ParseCustodianID(input)
			_, errEvent := ParseEventID(input)
			require.Error(t, errTransfer)
			require.Error(t, errCustodian)
			require.Error(t, errEvent)
		})
	}
}

func TestDeterministicEventID(t *testing.T) {
	a := DeterministicEventID("rollover-1", "execute_transfer", "0xabc")
	b := DeterministicEventID("rollover-1", "execute_transfer", "0xabc")
	c := DeterministicEventID("rollover-1", "execute_transfer", "0xdef")

	assert.Equal(t, a, b, "same parts must yield the same id")
	assert.NotEqual(t, a, c)

	_, err := ParseEventID(a.String())
	assert.NoError(t, err, "derived ids must pass event id validation")
}
