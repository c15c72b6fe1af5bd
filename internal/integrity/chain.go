package integrity

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/roach88/semledger/internal/canon"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/rdf"
)

// checkChain runs the chain phase. spotCheck > 0 limits hash recomputation
// to the last spotCheck blocks.
func checkChain(ctx context.Context, r ledger.Reader, spotCheck int) BlockchainStatus {
	var st BlockchainStatus
	blocks := r.Blocks()
	st.ChainLength = len(blocks)

	rec, err := r.LoadPersistedHeaders(ctx)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("load headers: %v", err))
		raise(&st.Status, Critical)
		rec = &ledger.Reconstruction{}
	}
	st.PersistedCount = len(rec.Headers)
	st.ReconstructionErrors = slices.Clone(rec.Problems)

	persisted := make(map[uint64]ledger.Header, len(rec.Headers))
	var maxIndex uint64
	for _, h := range rec.Headers {
		persisted[h.Index] = h
		maxIndex = max(maxIndex, h.Index)
	}
	for _, b := range blocks {
		if _, ok := persisted[b.Index]; !ok {
			st.MissingFromStore = append(st.MissingFromStore, b.Index)
		}
	}
	for _, h := range rec.Headers {
		if h.Index >= uint64(len(blocks)) {
			st.MissingFromChain = append(st.MissingFromChain, h.Index)
		}
	}
	if len(rec.Headers) > 0 {
		for i := uint64(0); i < maxIndex; i++ {
			if _, ok := persisted[i]; !ok {
				st.IndexGaps = append(st.IndexGaps, i)
			}
		}
	}

	for _, b := range blocks {
		if h, ok := persisted[b.Index]; ok {
			st.HeaderMismatches = append(st.HeaderMismatches, compareHeader(r, b, h)...)
		}
	}

	checked := spotCheckIndices(len(blocks), spotCheck)
	st.CheckedBlocks = checked
	for _, i := range checked {
		if err := ctx.Err(); err != nil {
			st.Errors = append(st.Errors, err.Error())
			break
		}
		b := blocks[i]
		want := ledger.GenesisPreviousHash
		if i > 0 {
			want = blocks[i-1].Hash
		}
		if b.PreviousHash != want {
			st.HashMismatches = append(st.HashMismatches, HashMismatch{
				Index: i, Kind: KindPreviousHash, Expected: want, Actual: b.PreviousHash,
			})
		}
		got, err := r.RecomputeHash(ctx, b)
		if err != nil {
			st.Errors = append(st.Errors, fmt.Sprintf("recompute hash %d: %v", i, err))
			continue
		}
		if got != b.Hash {
			st.HashMismatches = append(st.HashMismatches, HashMismatch{
				Index: i, Kind: KindBlockHash, Expected: b.Hash, Actual: got,
			})
		}
	}

	corrupted, errs := detectCorrupted(ctx, r, blocks, checked)
	st.CorruptedBlocks = corrupted
	st.Errors = append(st.Errors, errs...)

	st.Status = Worst(st.Status, chainStatus(&st, rec))
	return st
}

func chainStatus(st *BlockchainStatus, rec *ledger.Reconstruction) Status {
	n := st.ChainLength
	for _, cb := range st.CorruptedBlocks {
		if cb.Index == 0 {
			return Corrupted
		}
	}
	if n > 1 && 2*len(st.CorruptedBlocks) >= n {
		return Corrupted
	}
	if n > 0 && len(rec.Headers) == 0 {
		return Corrupted
	}
	if len(st.CorruptedBlocks) > 0 || len(st.HashMismatches) > 0 ||
		len(st.MissingFromStore) > 0 || len(st.MissingFromChain) > 0 ||
		len(st.IndexGaps) > 0 || len(st.HeaderMismatches) > 0 {
		return Critical
	}
	if len(st.ReconstructionErrors) > 0 || len(st.Errors) > 0 {
		return Warning
	}
	return Healthy
}

// spotCheckIndices returns the indices to recompute: all of them, or the
// last limit when limit is positive and smaller than n.
func spotCheckIndices(n, limit int) []uint64 {
	start := 0
	if limit > 0 && limit < n {
		start = n - limit
	}
	out := make([]uint64, 0, n-start)
	for i := start; i < n; i++ {
		out = append(out, uint64(i))
	}
	return out
}

func compareHeader(r ledger.Reader, b ledger.Block, h ledger.Header) []HeaderMismatch {
	var out []HeaderMismatch
	check := func(field, chain, persisted string) {
		if chain != persisted {
			out = append(out, HeaderMismatch{Index: b.Index, Field: field, Chain: chain, Persisted: persisted})
		}
	}
	check("timestamp", b.Timestamp, h.Timestamp)
	check("hash", b.Hash, h.Hash)
	check("previous_hash", b.PreviousHash, h.PreviousHash)
	check("data_graph", r.DataGraph(b.Index), h.DataGraph)
	check("validator_id", b.ValidatorID, h.ValidatorID)
	check("signature", b.Signature, h.Signature)
	check("encrypted_payload", hex.EncodeToString(b.EncryptedPayload), hex.EncodeToString(h.EncryptedPayload))
	check("state_snapshot", b.StateSnapshot, h.StateSnapshot)
	return out
}

// DetectCorruptedBlocks returns the indices of blocks whose stored graph
// is empty, fails to round-trip, disagrees with the payload or no longer
// reproduces the block hash.
func DetectCorruptedBlocks(ctx context.Context, r ledger.Reader) ([]uint64, error) {
	blocks := r.Blocks()
	found, errs := detectCorrupted(ctx, r, blocks, spotCheckIndices(len(blocks), 0))
	if len(errs) > 0 {
		return nil, fmt.Errorf("detect corrupted blocks: %s", errs[0])
	}
	out := make([]uint64, len(found))
	for i, cb := range found {
		out[i] = cb.Index
	}
	return out, nil
}

func detectCorrupted(ctx context.Context, r ledger.Reader, blocks []ledger.Block, indices []uint64) ([]CorruptedBlock, []string) {
	var (
		found []CorruptedBlock
		errs  []string
	)
	counts := r.ReportedCounts()
	c := r.Store().Canonicalizer()
	for _, i := range indices {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err.Error())
			break
		}
		b := blocks[i]
		prev := ledger.GenesisPreviousHash
		if i > 0 {
			prev = blocks[i-1].Hash
		}
		cb, err := blockCorruption(ctx, r, c, b, prev, countAt(counts, i))
		if err != nil {
			errs = append(errs, fmt.Sprintf("block %d: %v", i, err))
			continue
		}
		if len(cb.Reasons) > 0 {
			found = append(found, cb)
		}
	}
	return found, errs
}

func blockCorruption(ctx context.Context, r ledger.Reader, c *canon.Canonicalizer, b ledger.Block, prev string, reported int) (CorruptedBlock, error) {
	cb := CorruptedBlock{Index: b.Index}
	stored, err := r.Store().Triples(ctx, r.DataGraph(b.Index))
	if err != nil {
		return cb, err
	}
	if len(stored) == 0 && reported > 0 {
		cb.Reasons = append(cb.Reasons, "stored graph is empty")
	}

	reparsed, err := rdf.Parse(rdf.NTriples(stored))
	switch {
	case err != nil:
		cb.Reasons = append(cb.Reasons, fmt.Sprintf("stored graph does not re-parse: %v", err))
	case len(rdf.Dedup(reparsed)) != len(stored):
		cb.Reasons = append(cb.Reasons, fmt.Sprintf("stored graph round-trips to %d statements, not %d", len(rdf.Dedup(reparsed)), len(stored)))
	}

	storedHash, err := c.Hash(stored)
	if err != nil {
		return cb, err
	}
	blockHash, err := b.ComputeHash(storedHash)
	if err != nil {
		return cb, err
	}
	covered := blockHash == b.Hash
	if !covered {
		cb.Reasons = append(cb.Reasons, "stored graph does not reproduce the block hash")
	}

	payload, err := b.Triples()
	if err != nil {
		cb.Reasons = append(cb.Reasons, "payload does not parse")
		return cb, nil
	}
	payloadHash, err := c.Hash(payload)
	if err != nil {
		return cb, err
	}
	if payloadHash != storedHash {
		cb.Reasons = append(cb.Reasons, "payload disagrees with stored graph")
	} else if !covered && len(cb.Reasons) == 1 {
		cb.StaleHash = signedContent(r, b, prev, storedHash)
	}
	return cb, nil
}

// signedContent reports whether b's signature covers the hash of its
// current content linked to prev. A graph edited after signing fails.
func signedContent(r ledger.Reader, b ledger.Block, prev, payloadHash string) bool {
	if b.IsGenesis() {
		return false
	}
	b.PreviousHash = prev
	h, err := b.ComputeHash(payloadHash)
	if err != nil {
		return false
	}
	b.Hash = h
	return r.VerifySignature(b) == nil
}

func countAt(counts []int, i uint64) int {
	if i < uint64(len(counts)) {
		return counts[i]
	}
	return 0
}
