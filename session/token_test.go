package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("unknown-to-the-client"))
	require.NoError(t, err)

	got, err := TokenExpiry(signed)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = TokenExpiry(noExp)
	assert.Error(t, err)

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
