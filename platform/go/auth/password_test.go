package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("123")
	require.NoError(t, err)
	require.NotEqual(t, "123", hash)

	require.NoError(t, VerifyPassword(hash, "123"))
	require.ErrorIs(t, VerifyPassword(hash, "124"), ErrPasswordMismatch)
}

func TestVerifyPasswordLegacyPlaintext(t *testing.T) {
	// Rows created before the hash migration store the password as-is.
	require.NoError(t, VerifyPassword("123", "123"))
	require.ErrorIs(t, VerifyPassword("123", "wrong"), ErrPasswordMismatch)
}

func TestVerifyPasswordEmptyStored(t *testing.T) {
	require.ErrorIs(t, VerifyPassword("", ""), ErrPasswordMismatch)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	require.Error(t, err)
}
