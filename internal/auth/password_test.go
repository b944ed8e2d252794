package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-pass", hash)

	require.NoError(t, VerifyPassword(hash, "s3cret-pass"))
	require.Error(t, VerifyPassword(hash, "wrong-pass"))
	require.Error(t, VerifyPassword("", "s3cret-pass"))

	_, err = HashPassword("")
	require.Error(t, err)
}
