package credential

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("Abc12345")
	require.NoError(t, err)
	require.NotContains(t, hash, "Abc12345")

	require.True(t, h.Verify("Abc12345", hash))
	require.False(t, h.Verify("abc12345", hash))
}

func TestHashIsSaltedPerCall(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	first, err := h.Hash("Abc12345")
	require.NoError(t, err)
	second, err := h.Hash("Abc12345")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	require.False(t, h.Verify("Abc12345", ""))
	require.False(t, h.Verify("Abc12345", "not-a-bcrypt-hash"))
}

func TestNewHasherClampsCost(t *testing.T) {
	h := NewHasher(999)
	hash, err := h.Hash("Abc12345")
	require.NoError(t, err)
	require.True(t, h.Verify("Abc12345", hash))
}
