package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/semledger/internal/digest"
	"github.com/roach88/semledger/internal/rdf"
)

// State is a block's position in its lifecycle.
type State int

const (
	StateProposed State = iota
	StateHashed
	StatePersisted
	StateSigned
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateHashed:
		return "hashed"
	case StatePersisted:
		return "persisted"
	case StateSigned:
		return "signed"
	case StateCommitted:
		return "committed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Genesis sentinels.
const (
	GenesisPayload      = `ex:genesis ex:type "Genesis Block" .`
	GenesisPreviousHash = "0"
	GenesisValidator    = "GENESIS"
)

// GenesisSignature is the fixed signature carried by block 0.
var GenesisSignature = strings.Repeat("0", ed25519.SignatureSize*2)

// Block is one entry of the chain. Hash and Signature are hex strings.
type Block struct {
	Index            uint64 `json:"index"`
	Timestamp        string `json:"timestamp"`
	Payload          string `json:"payload"`
	EncryptedPayload []byte `json:"encrypted_payload,omitempty"`
	PreviousHash     string `json:"previous_hash"`
	Hash             string `json:"hash"`
	StateSnapshot    string `json:"state_snapshot"`
	ValidatorID      string `json:"validator_id"`
	Signature        string `json:"signature"`

	state State
}

// State reports the block's lifecycle state.
func (b *Block) State() State { return b.state }

// IsGenesis reports whether b is block 0.
func (b *Block) IsGenesis() bool { return b.Index == 0 }

// Clone returns a deep copy.
func (b *Block) Clone() *Block {
	c := *b
	c.EncryptedPayload = bytes.Clone(b.EncryptedPayload)
	return &c
}

// Triples parses the payload.
func (b *Block) Triples() ([]rdf.Triple, error) {
	triples, err := rdf.Parse(b.Payload)
	if err != nil {
		return nil, fmt.Errorf("block %d payload: %w", b.Index, err)
	}
	return rdf.Dedup(triples), nil
}

// HashRecord returns the fields covered by the block hash.
//
// CRITICAL: Signature and StateSnapshot are excluded. Adding a field here
// changes every block hash and requires a new digest domain.
func (b *Block) HashRecord(payloadHash string) map[string]any {
	return map[string]any{
		"index":             b.Index,
		"timestamp":         b.Timestamp,
		"payload_hash":      payloadHash,
		"previous_hash":     b.PreviousHash,
		"validator_id":      b.ValidatorID,
		"encrypted_payload": hex.EncodeToString(b.EncryptedPayload),
	}
}

// ComputeHash hashes b's record given the canonical hash of its payload graph.
func (b *Block) ComputeHash(payloadHash string) (string, error) {
	return digest.Record(digest.DomainBlock, b.HashRecord(payloadHash))
}

// Sign signs the block hash with priv. The block must be hashed.
func (b *Block) Sign(priv ed25519.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("sign block %d: private key is %d bytes, want %d", b.Index, len(priv), ed25519.PrivateKeySize)
	}
	msg, err := hex.DecodeString(b.Hash)
	if err != nil || b.Hash == "" {
		return fmt.Errorf("sign block %d: block is not hashed", b.Index)
	}
	b.Signature = hex.EncodeToString(ed25519.Sign(priv, msg))
	return nil
}

// verifySignature checks b.Signature over b.Hash with pub.
func (b *Block) verifySignature(pub ed25519.PublicKey) error {
	sig, err := hex.DecodeString(b.Signature)
	if err != nil {
		return newSubmitError(ErrCodeBadSignature, b, "signature is not hex", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return newSubmitError(ErrCodeSignatureLength, b,
			fmt.Sprintf("signature is %d bytes, want %d", len(sig), ed25519.SignatureSize), nil)
	}
	msg, err := hex.DecodeString(b.Hash)
	if err != nil {
		return newSubmitError(ErrCodeBadSignature, b, "hash is not hex", err)
	}
	if !ed25519.Verify(pub, msg, sig) {
		return newSubmitError(ErrCodeBadSignature, b, "signature does not verify against block hash", nil)
	}
	return nil
}

// PublicKeyFromID decodes an open-mode validator id, which is the hex
// encoding of the validator's ed25519 public key.
func PublicKeyFromID(id string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return nil, fmt.Errorf("validator id is not hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("validator id is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
