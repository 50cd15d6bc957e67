package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken(99, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(99), claims.AccountID)
	assert.NotEmpty(t, claims.ID)
}

func TestTokensAreUniquePerIssue(t *testing.T) {
	// Same account, same TTL, issued within the same second: the jti claim
	// must still make the tokens distinct, or refresh hands back the token
	// it was supposed to replace.
	t1, err := GenerateToken(1, testSecret, time.Hour)
	require.NoError(t, err)
	t2, err := GenerateToken(1, testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	c1, err := ParseToken(t1, testSecret)
	require.NoError(t, err)
	c2, err := ParseToken(t2, testSecret)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	tok, err := GenerateToken(1, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "wrong-secret")
	assert.Error(t, err, "wrong secret")

	expired, err := GenerateToken(1, testSecret, -time.Second)
	require.NoError(t, err)
	_, err = ParseToken(expired, testSecret)
	assert.Error(t, err, "expired token")

	_, err = ParseToken("not.a.jwt", testSecret)
	assert.Error(t, err, "malformed token")

	_, err = ParseToken("", testSecret)
	assert.Error(t, err, "empty token")
}
