package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/pkg/crypto"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := crypto.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	require.True(t, crypto.VerifyPassword("correct horse battery staple", hash))
	require.False(t, crypto.VerifyPassword("wrong password", hash))
	require.False(t, crypto.VerifyPassword("correct horse battery staple", "not a hash"))
}

func TestGenerateRandomString(t *testing.T) {
	a, err := crypto.GenerateRandomString(16)
	require.NoError(t, err)
	require.NotEmpty(t, a)

	b, err := crypto.GenerateRandomString(16)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	raw, err := crypto.GenerateRandomBytes(32)
	require.NoError(t, err)
	require.Len(t, raw, 32)
}
