package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("secret123", fastParams)
	require.NoError(t, err)

	ok, err := VerifyPassword("secret123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	_, err := VerifyPassword("secret123", []byte("$bcrypt$nope"))
	require.ErrorIs(t, err, ErrMalformedHash)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("s3cret", "user-1", "sess-1", "dev-1", []string{"trainer"}, time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "dev-1", claims.DeviceID)
	assert.Equal(t, []string{"trainer"}, claims.Roles)
	assert.True(t, claims.HasRole("trainer"))
	assert.False(t, claims.HasRole("admin"))
}

func TestAccessTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateAccessToken("s3cret", "user-1", "sess-1", "dev-1", nil, time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(token, "other")
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateAccessToken("s3cret", "user-1", "sess-1", "dev-1", nil, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(expired, "s3cret")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenHash(t *testing.T) {
	token, hash, err := GenerateRefreshToken(32)
	require.NoError(t, err)
	assert.Equal(t, hash, HashRefreshToken(token))

	other, _, err := GenerateRefreshToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestResourceSignature(t *testing.T) {
	sig := SignResource("k", "ex-1", "media/ex-1.png")
	assert.True(t, VerifyResource("k", sig, "ex-1", "media/ex-1.png"))
	assert.False(t, VerifyResource("k", sig, "ex-2", "media/ex-1.png"))
	assert.False(t, VerifyResource("k", SignResource("k", "ab", "c"), "a", "bc"))
	assert.False(t, VerifyResource("k", nil))
}
