package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/semledger/internal/canon"
	"github.com/roach88/semledger/internal/graphstore"
)

func (l *Ledger) recomputeHash(ctx context.Context, b *Block) (string, error) {
	payloadHash, err := l.store.CanonicalizeWith(ctx, canon.Adaptive, graphstore.BlockGraph(b.Index))
	if err != nil {
		return "", fmt.Errorf("recompute hash %d: %w", b.Index, err)
	}
	return b.ComputeHash(payloadHash)
}

// ValidPrefix returns how many leading blocks are valid. Block i is valid
// when its stored graph reproduces its hash and, for i > 0, its previous
// hash equals block i-1's hash. The first failure invalidates every block
// after it, so the result is the index of that first failure.
func (l *Ledger) ValidPrefix(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.validPrefix(ctx)
}

func (l *Ledger) validPrefix(ctx context.Context) (int, error) {
	for i, b := range l.blocks {
		if i == 0 && b.PreviousHash != GenesisPreviousHash {
			return 0, nil
		}
		if i > 0 && b.PreviousHash != l.blocks[i-1].Hash {
			return i, nil
		}
		h, err := l.recomputeHash(ctx, b)
		if err != nil {
			return i, err
		}
		if h != b.Hash {
			l.logger.Debug("hash mismatch", "index", i, "stored", b.Hash, "recomputed", h)
			return i, nil
		}
	}
	return len(l.blocks), nil
}

// IsChainValid reports whether every block is valid.
func (l *Ledger) IsChainValid(ctx context.Context) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, err := l.validPrefix(ctx)
	if err != nil {
		return false, err
	}
	return n == len(l.blocks), nil
}
