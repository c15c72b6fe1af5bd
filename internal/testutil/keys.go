package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
)

// Key is a deterministic ed25519 key pair for tests.
type Key struct {
	Name    string
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// NewKey derives a key pair from name. The same name always yields the
// same key, so signatures in golden files are stable.
func NewKey(name string) Key {
	seed := sha256.Sum256([]byte("semledger/test-key/" + name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return Key{
		Name:    name,
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
	}
}

// ID returns the hex-encoded public key, the validator id used in open mode.
func (k Key) ID() string {
	return hex.EncodeToString(k.Public)
}

// Sign signs the decoded bytes of a hex hash and returns a hex signature.
// It panics on malformed hex; tests pass hashes produced by the ledger.
func (k Key) Sign(hashHex string) string {
	msg, err := hex.DecodeString(hashHex)
	if err != nil {
		panic("testutil: sign non-hex hash: " + err.Error())
	}
	return hex.EncodeToString(ed25519.Sign(k.Private, msg))
}
