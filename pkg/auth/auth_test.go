package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("owner@studio.io", RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := Parse(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "owner@studio.io", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "owner@studio.io", claims.Subject)
}

func TestParseRejectsWrongSecretAndExpiry(t *testing.T) {
	tok, err := NewAccessToken("owner@studio.io", RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)
	_, err = Parse(tok, "other")
	assert.Error(t, err)

	expired, err := NewAccessToken("owner@studio.io", RoleAdmin, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, "secret")
	assert.Error(t, err)

	_, err = Parse("garbage", "secret")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword("correct horse", hash))
	assert.ErrorIs(t, CheckPassword("wrong", hash), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckPassword("correct horse", ""), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckPassword("", hash), ErrInvalidCredentials)
}
