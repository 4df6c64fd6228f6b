package auth

import (
	"testing"

	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testAuth(t *testing.T) *Auth {
	t.Helper()

	// no test touches Redis, the client just satisfies construction
	a, err := New(Options{
		Redis:         redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}),
		Logger:        zaptest.NewLogger(t),
		JWTSigningKey: "test-signing-key",
		Environment:   EnvDevelopment,
	})
	require.NoError(t, err)

	return a
}

func TestHashAndVerifyPassword(t *testing.T) {
	a := testAuth(t)

	hash, err := a.HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, a.VerifyPassword(hash, "hunter22"))
	assert.False(t, a.VerifyPassword(hash, "hunter23"))
	assert.False(t, a.VerifyPassword("not-a-hash", "hunter22"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	a := testAuth(t)

	token, err := a.CreateTokenFromClaims(Claims{
		Email:           "alice@example.com",
		Role:            "user",
		ProfileComplete: true,
	})
	require.NoError(t, err)

	claims, err := a.verifyToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.True(t, claims.ProfileComplete)
}

func TestVerifyTokenRejectsForgery(t *testing.T) {
	a := testAuth(t)

	other, err := New(Options{
		Redis:         redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}),
		Logger:        zaptest.NewLogger(t),
		JWTSigningKey: "a-different-signing-key",
		Environment:   EnvDevelopment,
	})
	require.NoError(t, err)

	forged, err := other.CreateTokenFromClaims(Claims{
		Email: "mallory@example.com",
	})
	require.NoError(t, err)

	claims, err := a.verifyToken(forged)
	require.NoError(t, err)
	assert.Nil(t, claims)

	claims, err = a.verifyToken("garbage")
	require.NoError(t, err)
	assert.Nil(t, claims)
}
