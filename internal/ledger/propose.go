package ledger

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/roach88/semledger/internal/rdf"
)

// Propose builds an unsigned block for payload on top of the current tail.
//
// The payload is parsed and checked against the policy; both failures are
// returned as-is. The returned block is in StateHashed and carries a state
// snapshot of the store at proposal time.
func (l *Ledger) Propose(ctx context.Context, payload, validatorID string, encrypted []byte) (*Block, error) {
	triples, err := rdf.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}
	triples = rdf.Dedup(triples)
	if err := l.policy.Check(ctx, triples); err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.blocks) == 0 {
		if err := l.commitGenesis(ctx); err != nil {
			return nil, fmt.Errorf("propose: %w", err)
		}
	}
	snapshot, err := l.store.Fingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}

	tail := l.blocks[len(l.blocks)-1]
	b := &Block{
		Index:            uint64(len(l.blocks)),
		Timestamp:        formatTimestamp(l.clock.Now()),
		Payload:          payload,
		EncryptedPayload: cloneBytes(encrypted),
		PreviousHash:     tail.Hash,
		StateSnapshot:    snapshot,
		ValidatorID:      validatorID,
		state:            StateProposed,
	}
	if err := l.hashBlock(b, triples); err != nil {
		return nil, fmt.Errorf("propose: %w", err)
	}
	return b, nil
}

// SubmitSigned authorizes a signed block and commits it.
//
// Checks run in order: validator authorization, signature length,
// signature, tail binding, payload policy, hash. Any failure returns a
// *SubmitError and leaves the chain and store unchanged. A payload that
// does not parse is a structural error and is returned unwrapped.
func (l *Ledger) SubmitSigned(ctx context.Context, b *Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submit(ctx, b)
}

func (l *Ledger) submit(ctx context.Context, b *Block) error {
	pub, err := l.authorize(b)
	if err != nil {
		return err
	}
	if err := b.verifySignature(pub); err != nil {
		return err
	}

	if len(l.blocks) == 0 {
		return newSubmitError(ErrCodeStaleTail, b, "chain has no genesis block", nil)
	}
	tail := l.blocks[len(l.blocks)-1]
	if b.Index != uint64(len(l.blocks)) || b.PreviousHash != tail.Hash {
		return newSubmitError(ErrCodeStaleTail, b,
			fmt.Sprintf("tail is %d (%s)", tail.Index, tail.Hash), nil)
	}

	triples, err := b.Triples()
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := l.policy.Check(ctx, triples); err != nil {
		return newSubmitError(ErrCodePolicyViolation, b, "payload rejected", err)
	}

	payloadHash, err := l.store.Canonicalizer().Hash(triples)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	expected, err := b.ComputeHash(payloadHash)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if expected != b.Hash {
		return newSubmitError(ErrCodeHashDrift, b, "block fields do not reproduce its hash", nil)
	}

	if err := l.commit(ctx, b, triples, pub); err != nil {
		l.logger.Warn("block rejected", "index", b.Index, "validator", b.ValidatorID, "error", err)
		return err
	}
	l.logger.Info("block committed",
		"index", b.Index,
		"hash", b.Hash,
		"validator", b.ValidatorID,
		"transactions", len(triples),
	)
	return nil
}

// authorize resolves the block's validator to a public key.
func (l *Ledger) authorize(b *Block) (ed25519.PublicKey, error) {
	if len(l.validators) > 0 {
		pub, ok := l.validators[b.ValidatorID]
		if !ok {
			return nil, newSubmitError(ErrCodeUnknownValidator, b,
				fmt.Sprintf("validator %q is not in the allow-list", b.ValidatorID), nil)
		}
		return pub, nil
	}
	pub, err := PublicKeyFromID(b.ValidatorID)
	if err != nil {
		return nil, newSubmitError(ErrCodeUnknownValidator, b,
			"open mode requires the validator id to be a hex ed25519 public key", err)
	}
	return pub, nil
}
