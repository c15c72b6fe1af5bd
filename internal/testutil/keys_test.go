package testutil

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey_Deterministic(t *testing.T) {
	a := NewKey("alice")
	b := NewKey("alice")
	assert.Equal(t, a.Public, b.Public)
	assert.Equal(t, a.ID(), b.ID())

	assert.NotEqual(t, a.ID(), NewKey("bob").ID())
}

func TestKey_SignVerifies(t *testing.T) {
	k := NewKey("validator")
	hash := strings.Repeat("ab", 32)

	sigHex := k.Sign(hash)
	assert.Len(t, sigHex, ed25519.SignatureSize*2)

	sig, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	msg, err := hex.DecodeString(hash)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(k.Public, msg, sig))
}

func TestKey_SignPanicsOnBadHex(t *testing.T) {
	assert.Panics(t, func() { NewKey("x").Sign("not-hex") })
}
