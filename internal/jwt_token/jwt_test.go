package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "trustrails/pkg/domain"
	dErrors "trustrails/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")

const (
	custodian id.CustodianID = "custodian-src"
	actor     id.ActorID     = "alice@custodian-src"
)

func Test_IssueToken(t *testing.T) {
	token, err := jwtService.IssueToken(custodian, actor, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, string(custodian), claims.CustodianID)
	assert.Equal(t, string(actor), claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_IssueToken_RequiresCustodian(t *testing.T) {
	_, err := jwtService.IssueToken("", actor, time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.IssueToken(custodian, actor, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token has expired")
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	for name, other := range map[string]*JWTService{
		"key":    NewJWTService("other-key", "test-issuer"),
		"issuer": NewJWTService("test-signing-key", "other-issuer"),
	} {
		t.Run(name, func(t *testing.T) {
			token, err := other.IssueToken(custodian, actor, time.Hour)
			require.NoError(t, err)
			_, err = jwtService.ValidateToken(token)
			assert.Equal(t, dErrors.CodeUnauthorized, dErrors.CodeOf(err))
		})
	}
}

func Test_Adapter_FallsBackToCustodianActor(t *testing.T) {
	token, err := jwtService.IssueToken(custodian, "", time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, custodian, claims.CustodianID)
	assert.Equal(t, id.ActorID("custodian:custodian-src"), claims.ActorID)
}
