package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthenticator("secret", "chat", time.Hour)

	token, err := a.GenerateToken(42, "a@x.com")
	require.NoError(t, err)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)

	id, err := a.UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestExpiredToken(t *testing.T) {
	a := NewAuthenticator("secret", "chat", -time.Minute)
	token, err := a.GenerateToken(1, "a@x.com")
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenFromOtherSecretOrIssuer(t *testing.T) {
	a := NewAuthenticator("secret", "chat", time.Hour)

	other, _ := NewAuthenticator("other", "chat", time.Hour).GenerateToken(1, "a@x.com")
	_, err := a.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, _ := NewAuthenticator("secret", "elsewhere", time.Hour).GenerateToken(1, "a@x.com")
	_, err = a.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNonNumericSubject(t *testing.T) {
	a := NewAuthenticator("secret", "chat", time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "chat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = a.UserIDFromToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrWeakPassword)
}
