package ledger

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/testutil"
)

func sampleBlock() *Block {
	return &Block{
		Index:         3,
		Timestamp:     "2024-01-01T00:00:03Z",
		Payload:       "ex:a ex:b ex:c .",
		PreviousHash:  strings.Repeat("a", 64),
		StateSnapshot: strings.Repeat("b", 64),
		ValidatorID:   "node-a",
	}
}

func TestComputeHash_CoversRecordFields(t *testing.T) {
	payloadHash := strings.Repeat("c", 64)
	base, err := sampleBlock().ComputeHash(payloadHash)
	require.NoError(t, err)

	mutations := map[string]func(b *Block){
		"index":             func(b *Block) { b.Index++ },
		"timestamp":         func(b *Block) { b.Timestamp = "2024-01-01T00:00:04Z" },
		"previous_hash":     func(b *Block) { b.PreviousHash = strings.Repeat("d", 64) },
		"validator_id":      func(b *Block) { b.ValidatorID = "node-b" },
		"encrypted_payload": func(b *Block) { b.EncryptedPayload = []byte{1} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := sampleBlock()
			mutate(b)
			h, err := b.ComputeHash(payloadHash)
			require.NoError(t, err)
			assert.NotEqual(t, base, h)
		})
	}

	other, err := sampleBlock().ComputeHash(strings.Repeat("e", 64))
	require.NoError(t, err)
	assert.NotEqual(t, base, other, "payload hash is covered")
}

func TestComputeHash_ExcludesSignatureAndSnapshot(t *testing.T) {
	payloadHash := strings.Repeat("c", 64)
	base, err := sampleBlock().ComputeHash(payloadHash)
	require.NoError(t, err)

	b := sampleBlock()
	b.Signature = strings.Repeat("f", 128)
	b.StateSnapshot = "changed"
	h, err := b.ComputeHash(payloadHash)
	require.NoError(t, err)
	assert.Equal(t, base, h)
}

func TestSign_RequiresHash(t *testing.T) {
	key := testutil.NewKey("signer")
	b := sampleBlock()
	assert.Error(t, b.Sign(key.Private))

	b.Hash = strings.Repeat("0a", 32)
	require.NoError(t, b.Sign(key.Private))
	assert.Equal(t, key.Sign(b.Hash), b.Signature)
	assert.NoError(t, b.verifySignature(key.Public))
}

func TestVerifySignature_Codes(t *testing.T) {
	key := testutil.NewKey("signer")
	b := sampleBlock()
	b.Hash = strings.Repeat("0a", 32)
	require.NoError(t, b.Sign(key.Private))

	short := *b
	short.Signature = short.Signature[:10]
	assert.Equal(t, ErrCodeSignatureLength, CodeOf(short.verifySignature(key.Public)))

	garbled := *b
	garbled.Signature = "zz" + garbled.Signature[2:]
	assert.Equal(t, ErrCodeBadSignature, CodeOf(garbled.verifySignature(key.Public)))

	other := testutil.NewKey("other")
	assert.Equal(t, ErrCodeBadSignature, CodeOf(b.verifySignature(other.Public)))
}

func TestPublicKeyFromID(t *testing.T) {
	key := testutil.NewKey("id")
	pub, err := PublicKeyFromID(key.ID())
	require.NoError(t, err)
	assert.Equal(t, key.Public, pub)

	_, err = PublicKeyFromID("not hex")
	assert.Error(t, err)
	_, err = PublicKeyFromID(hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestBlockClone_IsDeep(t *testing.T) {
	b := sampleBlock()
	b.EncryptedPayload = []byte{1, 2, 3}
	c := b.Clone()
	c.EncryptedPayload[0] = 9
	assert.Equal(t, byte(1), b.EncryptedPayload[0])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "proposed", StateProposed.String())
	assert.Equal(t, "committed", StateCommitted.String())
	assert.Equal(t, "State(42)", State(42).String())
}
