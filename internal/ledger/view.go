package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/rdf"
	"github.com/roach88/semledger/internal/txn"
)

// Reader is read access to a ledger under one of its locks.
// Both *View and *Tx implement it.
type Reader interface {
	Blocks() []Block
	Block(i uint64) (Block, bool)
	Len() int
	Tail() Block
	Store() *graphstore.Store
	ReportedCounts() []int
	TotalTransactions() int
	LoadPersistedHeaders(ctx context.Context) (*Reconstruction, error)
	RecomputeHash(ctx context.Context, b Block) (string, error)
	VerifySignature(b Block) error
	DataGraph(i uint64) string
}

// View is read access, valid only inside Ledger.View or Ledger.Update.
type View struct {
	l *Ledger
}

var _ Reader = (*View)(nil)

func (v *View) Blocks() []Block {
	out := make([]Block, len(v.l.blocks))
	for i, b := range v.l.blocks {
		out[i] = *b.Clone()
	}
	return out
}

func (v *View) Block(i uint64) (Block, bool) {
	if i >= uint64(len(v.l.blocks)) {
		return Block{}, false
	}
	return *v.l.blocks[i].Clone(), true
}

func (v *View) Len() int { return len(v.l.blocks) }

func (v *View) Tail() Block {
	return *v.l.blocks[len(v.l.blocks)-1].Clone()
}

func (v *View) Store() *graphstore.Store { return v.l.store }

// ReportedCounts returns the per-block transaction counts the chain holds.
func (v *View) ReportedCounts() []int {
	return append([]int(nil), v.l.counts...)
}

// TotalTransactions returns the chain's aggregate counter.
func (v *View) TotalTransactions() int { return v.l.total }

// LoadPersistedHeaders reconstructs headers from the metadata graph.
func (v *View) LoadPersistedHeaders(ctx context.Context) (*Reconstruction, error) {
	return loadHeaders(ctx, v.l.store)
}

// RecomputeHash derives b's hash from its stored payload graph. It always
// canonicalizes afresh and never reads the canonical cache.
func (v *View) RecomputeHash(ctx context.Context, b Block) (string, error) {
	return v.l.recomputeHash(ctx, &b)
}

// DataGraph returns the payload graph name of block i.
// VerifySignature checks b's signature over b.Hash with the key its
// validator resolves to.
func (v *View) VerifySignature(b Block) error {
	pub, err := v.l.authorize(&b)
	if err != nil {
		return err
	}
	return b.verifySignature(pub)
}

func (v *View) DataGraph(i uint64) string { return graphstore.BlockGraph(i) }

// Tx is exclusive access, valid only inside Ledger.Update.
type Tx struct {
	View
}

var _ Reader = (*Tx)(nil)

// Atomic returns the ledger's atomic operation context.
func (tx *Tx) Atomic() *txn.Context { return tx.l.atomic }

// Submit is SubmitSigned without taking the lock.
func (tx *Tx) Submit(ctx context.Context, b *Block) error {
	return tx.l.submit(ctx, b)
}

// ReloadBlock appends a block rebuilt from a persisted header and its
// stored payload graph. The header must extend the in-memory chain.
func (tx *Tx) ReloadBlock(ctx context.Context, h Header) error {
	l := tx.l
	if h.Index != uint64(len(l.blocks)) {
		return fmt.Errorf("reload block %d: chain has %d blocks", h.Index, len(l.blocks))
	}
	b, count, err := l.rebuildBlock(ctx, h)
	if err != nil {
		return err
	}
	l.blocks = append(l.blocks, b)
	l.counts = append(l.counts, count)
	return nil
}

// PersistBlock writes in-memory block i's payload graph and header.
func (tx *Tx) PersistBlock(ctx context.Context, i uint64) error {
	l := tx.l
	if i >= uint64(len(l.blocks)) {
		return fmt.Errorf("persist block %d: chain has %d blocks", i, len(l.blocks))
	}
	b := l.blocks[i]
	triples, err := b.Triples()
	if err != nil {
		return fmt.Errorf("persist block %d: %w", i, err)
	}
	if err := l.store.ReplaceGraph(ctx, graphstore.BlockGraph(i), triples); err != nil {
		return fmt.Errorf("persist block %d: %w", i, err)
	}
	return writeHeader(ctx, l.store, b, l.counts[i])
}

// WritePayloadGraph replaces block i's stored graph with triples.
func (tx *Tx) WritePayloadGraph(ctx context.Context, i uint64, triples []rdf.Triple) error {
	if err := tx.l.store.ReplaceGraph(ctx, graphstore.BlockGraph(i), triples); err != nil {
		return fmt.Errorf("write payload graph %d: %w", i, err)
	}
	return nil
}

// ReplaceBlock swaps in-memory block b.Index for b and rewrites its header.
func (tx *Tx) ReplaceBlock(ctx context.Context, b Block) error {
	l := tx.l
	if b.Index >= uint64(len(l.blocks)) {
		return fmt.Errorf("replace block %d: chain has %d blocks", b.Index, len(l.blocks))
	}
	next := b.Clone()
	next.state = StateCommitted
	l.blocks[b.Index] = next
	return writeHeader(ctx, l.store, next, l.counts[b.Index])
}

// RewriteCounts replaces every per-block count and the aggregate, in
// memory and in the metadata graph.
func (tx *Tx) RewriteCounts(ctx context.Context, counts []int, total int) error {
	l := tx.l
	if len(counts) != len(l.blocks) {
		return fmt.Errorf("rewrite counts: %d counts for %d blocks", len(counts), len(l.blocks))
	}
	for i, n := range counts {
		if err := writeCount(ctx, l.store, uint64(i), n); err != nil {
			return err
		}
	}
	if err := writeTotal(ctx, l.store, total); err != nil {
		return err
	}
	l.counts = append(l.counts[:0], counts...)
	l.total = total
	return nil
}

// TruncateChain drops in-memory blocks from index n onward. The store is
// not touched.
func (tx *Tx) TruncateChain(n int) error {
	l := tx.l
	if n < 0 || n > len(l.blocks) {
		return fmt.Errorf("truncate chain to %d: chain has %d blocks", n, len(l.blocks))
	}
	for _, c := range l.counts[n:] {
		l.total -= c
	}
	l.blocks = l.blocks[:n]
	l.counts = l.counts[:n]
	return nil
}

// RemoveHeader deletes block i's header from the metadata graph.
func (tx *Tx) RemoveHeader(ctx context.Context, i uint64) error {
	return removeHeader(ctx, tx.l.store, i)
}

// RewriteHeader rewrites block i's header from the in-memory block.
func (tx *Tx) RewriteHeader(ctx context.Context, i uint64) error {
	l := tx.l
	if i >= uint64(len(l.blocks)) {
		return fmt.Errorf("rewrite header %d: chain has %d blocks", i, len(l.blocks))
	}
	return writeHeader(ctx, l.store, l.blocks[i], l.counts[i])
}

// RebuildPayload replaces block i's in-memory payload with the sorted
// N-Triples of its stored graph.
func (tx *Tx) RebuildPayload(ctx context.Context, i uint64) error {
	l := tx.l
	if i >= uint64(len(l.blocks)) {
		return fmt.Errorf("rebuild payload %d: chain has %d blocks", i, len(l.blocks))
	}
	triples, err := l.store.Triples(ctx, graphstore.BlockGraph(i))
	if err != nil {
		return fmt.Errorf("rebuild payload %d: %w", i, err)
	}
	l.blocks[i].Payload = payloadText(triples)
	return nil
}
