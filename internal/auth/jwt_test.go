package auth

import (
	"testing"
	"time"

	"haven/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessExpiry:  time.Minute,
		RefreshExpiry: time.Hour,
		Issuer:        "haven-test",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	tok, err := GenerateAccessToken(cfg, 42, "a@b.c", "VOLUNTEER")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "VOLUNTEER", claims.Role)
}

func TestAccessTokenRejectsWrongSecretAndExpired(t *testing.T) {
	cfg := testJWTConfig()
	tok, err := GenerateAccessToken(cfg, 1, "a@b.c", "SEEKER")
	require.NoError(t, err)

	other := testJWTConfig()
	other.AccessSecret = "other"
	_, err = ParseAccessToken(other, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := testJWTConfig()
	expired.AccessExpiry = -time.Minute
	tok, err = GenerateAccessToken(expired, 1, "a@b.c", "SEEKER")
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	pair, err := GeneratePair(cfg, 7, "x@y.z", "SEEKER")
	require.NoError(t, err)

	id, err := ParseRefreshToken(cfg, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	_, err = ParseAccessToken(cfg, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ParseRefreshToken(cfg, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
