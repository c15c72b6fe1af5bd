package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/policy"
	"github.com/roach88/semledger/internal/rdf"
	"github.com/roach88/semledger/internal/txn"
)

//go:embed ontology.ttl
var ontologyTTL string

// Options configures a Ledger.
type Options struct {
	// Validators is the allow-list of validator ids and keys. Empty means
	// open mode: any validator whose id is its hex public key may submit.
	Validators map[string]ed25519.PublicKey

	// Policy checks payloads. Nil accepts everything.
	Policy policy.Policy

	// Clock stamps blocks. Nil uses the wall clock.
	Clock Clock

	Logger *slog.Logger
}

// Ledger owns a chain of blocks and the store that materializes them.
type Ledger struct {
	mu     sync.RWMutex
	store  *graphstore.Store
	blocks []*Block
	counts []int
	total  int

	validators map[string]ed25519.PublicKey
	policy     policy.Policy
	clock      Clock
	logger     *slog.Logger
	atomic     *txn.Context
}

// Open loads the ontology if absent, reconstructs the chain from the
// metadata graph and commits a genesis block when the chain is empty.
//
// Headers that cannot be reconstructed, and any headers after the first
// gap, are left out of the in-memory chain and logged. The integrity
// validator reports them.
func Open(ctx context.Context, store *graphstore.Store, opts Options) (*Ledger, error) {
	if opts.Policy == nil {
		opts.Policy = policy.Allow{}
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	l := &Ledger{
		store:      store,
		validators: opts.Validators,
		policy:     opts.Policy,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	l.atomic = txn.New(resources{l}, opts.Logger)

	if err := l.loadOntology(ctx); err != nil {
		return nil, err
	}
	if err := l.loadChain(ctx); err != nil {
		return nil, err
	}
	if len(l.blocks) == 0 {
		if err := l.commitGenesis(ctx); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) loadOntology(ctx context.Context) error {
	n, err := l.store.GraphLen(ctx, graphstore.OntologyGraph)
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}
	if n > 0 {
		return nil
	}
	added, err := l.store.AddToGraph(ctx, ontologyTTL, graphstore.OntologyGraph)
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}
	l.logger.Debug("ontology loaded", "triples", added)
	return nil
}

func (l *Ledger) loadChain(ctx context.Context) error {
	rec, err := loadHeaders(ctx, l.store)
	if err != nil {
		return err
	}
	for _, p := range rec.Problems {
		l.logger.Warn("skipping unreadable header", "problem", p)
	}
	prefix := rec.ContiguousPrefix()
	if len(prefix) < len(rec.Headers) {
		l.logger.Warn("chain has an index gap",
			"loaded", len(prefix), "persisted", len(rec.Headers))
	}

	sum := 0
	for _, h := range prefix {
		b, count, err := l.rebuildBlock(ctx, h)
		if err != nil {
			return err
		}
		l.blocks = append(l.blocks, b)
		l.counts = append(l.counts, count)
		sum += count
	}
	l.total = sum
	if rec.HasTotal {
		l.total = rec.TotalTransactions
	}
	if len(l.blocks) > 0 {
		l.logger.Info("chain loaded", "blocks", len(l.blocks), "transactions", l.total)
	}
	return nil
}

// rebuildBlock restores a block from its header and stored payload graph.
// The payload text becomes the sorted N-Triples of the stored graph.
func (l *Ledger) rebuildBlock(ctx context.Context, h Header) (*Block, int, error) {
	triples, err := l.store.Triples(ctx, graphstore.BlockGraph(h.Index))
	if err != nil {
		return nil, 0, fmt.Errorf("rebuild block %d: %w", h.Index, err)
	}
	count := len(triples)
	if h.HasCount {
		count = h.TransactionCount
	}
	return blockFromHeader(h, payloadText(triples)), count, nil
}

func payloadText(triples []rdf.Triple) string {
	return strings.Join(rdf.SortedNTriples(triples), "\n")
}

func (l *Ledger) commitGenesis(ctx context.Context) error {
	b := &Block{
		Index:        0,
		Timestamp:    formatTimestamp(l.clock.Now()),
		Payload:      GenesisPayload,
		PreviousHash: GenesisPreviousHash,
		ValidatorID:  GenesisValidator,
		Signature:    GenesisSignature,
	}
	triples, err := b.Triples()
	if err != nil {
		return err
	}
	if b.StateSnapshot, err = l.store.Fingerprint(ctx); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if err := l.hashBlock(b, triples); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if err := l.commit(ctx, b, triples, nil); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	l.logger.Info("genesis committed", "hash", b.Hash)
	return nil
}

func (l *Ledger) hashBlock(b *Block, triples []rdf.Triple) error {
	payloadHash, err := l.store.Canonicalizer().Hash(triples)
	if err != nil {
		return fmt.Errorf("hash block %d payload: %w", b.Index, err)
	}
	h, err := b.ComputeHash(payloadHash)
	if err != nil {
		return err
	}
	b.Hash = h
	b.state = StateHashed
	return nil
}

// commit persists b inside the atomic context. pub, when set, re-verifies
// the signature against the hash recomputed from the stored graph.
func (l *Ledger) commit(ctx context.Context, b *Block, triples []rdf.Triple, pub ed25519.PublicKey) error {
	err := l.atomic.Run(ctx, func(ctx context.Context) error {
		graph := graphstore.BlockGraph(b.Index)
		if err := l.store.ReplaceGraph(ctx, graph, triples); err != nil {
			return newSubmitError(ErrCodePersistFailed, b, "write payload graph", err)
		}
		b.state = StatePersisted

		payloadHash, err := l.store.Canonicalize(ctx, graph)
		if err != nil {
			return newSubmitError(ErrCodePersistFailed, b, "canonicalize stored graph", err)
		}
		recomputed, err := b.ComputeHash(payloadHash)
		if err != nil {
			return newSubmitError(ErrCodePersistFailed, b, "recompute hash", err)
		}
		if recomputed != b.Hash {
			return newSubmitError(ErrCodeHashDrift, b,
				fmt.Sprintf("stored graph hashes to %s, block carries %s", recomputed, b.Hash), nil)
		}
		if pub != nil {
			if err := b.verifySignature(pub); err != nil {
				return err
			}
		}
		b.state = StateSigned

		committed := b.Clone()
		committed.state = StateCommitted
		l.blocks = append(l.blocks, committed)
		l.counts = append(l.counts, len(triples))
		l.total += len(triples)

		if err := writeHeader(ctx, l.store, committed, len(triples)); err != nil {
			return newSubmitError(ErrCodePersistFailed, b, "write header", err)
		}
		if err := writeTotal(ctx, l.store, l.total); err != nil {
			return newSubmitError(ErrCodePersistFailed, b, "write total", err)
		}
		if err := l.store.Flush(ctx); err != nil {
			return newSubmitError(ErrCodePersistFailed, b, "flush", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.state = StateCommitted
	return nil
}

// View runs fn with read access to the chain and store.
func (l *Ledger) View(fn func(*View) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(&View{l: l})
}

// Update runs fn with exclusive access to the chain and store.
func (l *Ledger) Update(fn func(*Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&Tx{View: View{l: l}})
}

// Len returns the number of blocks in the chain.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Tail returns a copy of the last block.
func (l *Ledger) Tail() Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.blocks[len(l.blocks)-1].Clone()
}

// Blocks returns copies of every block.
func (l *Ledger) Blocks() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return (&View{l: l}).Blocks()
}

// Store returns the backing store. Writes made through it bypass the
// ledger's lock and atomic context.
func (l *Ledger) Store() *graphstore.Store {
	return l.store
}

// Append proposes, signs and submits a payload in one step.
func (l *Ledger) Append(ctx context.Context, payload, validatorID string, key ed25519.PrivateKey, encrypted []byte) (*Block, error) {
	b, err := l.Propose(ctx, payload, validatorID, encrypted)
	if err != nil {
		return nil, err
	}
	if err := b.Sign(key); err != nil {
		return nil, err
	}
	if err := l.SubmitSigned(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// resources adapts the ledger to txn.Resources. Its methods run with the
// ledger's write lock already held.
type resources struct {
	l *Ledger
}

func (r resources) SnapshotStore(ctx context.Context) (txn.StoreSnapshot, error) {
	return r.l.store.Snapshot(ctx)
}

func (r resources) RestoreStore(ctx context.Context, snap txn.StoreSnapshot) error {
	s, ok := snap.(*graphstore.Snapshot)
	if !ok {
		return fmt.Errorf("restore store: unexpected snapshot type %T", snap)
	}
	return r.l.store.Restore(ctx, s)
}

func (r resources) ChainLen() int { return len(r.l.blocks) }

func (r resources) TruncateChain(n int) error {
	return (&Tx{View: View{l: r.l}}).TruncateChain(n)
}

func (r resources) CheckpointChain() func() {
	l := r.l
	blocks := make([]*Block, len(l.blocks))
	for i, b := range l.blocks {
		blocks[i] = b.Clone()
	}
	counts := append([]int(nil), l.counts...)
	total := l.total
	return func() {
		l.blocks = blocks
		l.counts = counts
		l.total = total
	}
}

var _ txn.ChainCheckpointer = resources{}

func cloneBytes(b []byte) []byte { return bytes.Clone(b) }
