package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/semledger/internal/canon"
	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/ledger"
)

// Issue is one repaired or failed finding.
type Issue struct {
	Category    integrity.Category `json:"category"`
	Block       *uint64            `json:"block,omitempty"`
	Description string             `json:"description"`
	Error       string             `json:"error,omitempty"`
}

// Result reports what a repair batch did.
type Result struct {
	Successful                 int               `json:"successful"`
	Failed                     int               `json:"failed"`
	Repaired                   []Issue           `json:"repaired"`
	FailedIssues               []Issue           `json:"failed_issues"`
	ManualInterventionRequired []string          `json:"manual_intervention_required"`
	RolledBack                 bool              `json:"rolled_back,omitempty"`
	Post                       *integrity.Report `json:"post,omitempty"`
	StillCritical              bool              `json:"still_critical"`
}

// Options configures an Engine.
type Options struct {
	// Validator runs the post-repair pass. Nil means a sequential
	// validator with default options.
	Validator *integrity.Validator
	// Plan selects the phases of the post-repair pass. The zero value
	// means integrity.FullPlan().
	Plan   *integrity.Plan
	Logger *slog.Logger
}

// Engine repairs ledgers.
type Engine struct {
	validator *integrity.Validator
	plan      integrity.Plan
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Validator == nil {
		opts.Validator = integrity.NewValidator(integrity.Options{Logger: opts.Logger})
	}
	plan := integrity.FullPlan()
	if opts.Plan != nil {
		plan = *opts.Plan
	}
	return &Engine{validator: opts.Validator, plan: plan, logger: opts.Logger}
}

// order is the sequence categories are repaired in. Corrupted blocks go
// before relinking so a relink never hashes a tampered graph.
var order = []integrity.Category{
	integrity.CategoryChainLength,
	integrity.CategoryCorruptedBlock,
	integrity.CategoryHashChain,
	integrity.CategoryCanonicalization,
	integrity.CategoryTransactionCount,
}

// storage wraps an error that aborts the batch. Handlers return errors
// only for store failures; unrepairable findings are recorded instead.
func storage(err error) error {
	return fmt.Errorf("storage: %w", err)
}

// Repair applies the auto-fixable recommendations of report to l, then
// revalidates once. The returned error is non-nil only when the batch
// could not start or the post-repair pass could not run.
func (e *Engine) Repair(ctx context.Context, l *ledger.Ledger, report *integrity.Report) (*Result, error) {
	plan := Plan(report)
	res := &Result{}
	var manual []string
	for _, rec := range plan.Manual {
		manual = append(manual, fmt.Sprintf("%s: %s", rec.Category, rec.ActionRequired))
	}
	res.ManualInterventionRequired = slices.Clone(manual)
	if len(plan.Automatic) == 0 {
		res.Post = report.Clone()
		res.StillCritical = report != nil && report.OverallStatus >= integrity.Critical
		return res, nil
	}

	err := l.Update(func(tx *ledger.Tx) error {
		atomic := tx.Atomic()
		if err := atomic.Begin(ctx); err != nil {
			return fmt.Errorf("repair: %w", err)
		}
		b := &batch{tx: tx, res: res, logger: e.logger}
		if err := b.run(ctx, plan.Automatic); err != nil {
			e.logger.Error("repair batch failed, restoring backup", "error", err)
			if rbErr := atomic.Rollback(ctx); rbErr != nil {
				e.logger.Error("repair rollback failed", "error", rbErr)
				err = errors.Join(err, rbErr)
			}
			res.RolledBack = true
			res.Repaired = nil
			res.FailedIssues = nil
			res.ManualInterventionRequired = manual
			for _, rec := range plan.Automatic {
				res.FailedIssues = append(res.FailedIssues, Issue{
					Category:    rec.Category,
					Description: rec.Description,
					Error:       "batch rolled back: " + err.Error(),
				})
			}
		} else {
			if err := atomic.Commit(); err != nil {
				return fmt.Errorf("repair: %w", err)
			}
			if err := tx.Store().Flush(ctx); err != nil {
				e.logger.Warn("flush after repair failed", "error", err)
			}
		}

		post, err := e.validator.ValidateReader(ctx, tx, e.plan)
		if err != nil {
			return fmt.Errorf("repair: revalidate: %w", err)
		}
		res.Post = post
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Successful = len(res.Repaired)
	res.Failed = len(res.FailedIssues)
	res.StillCritical = res.Post.OverallStatus >= integrity.Critical
	e.logger.Info("repair complete",
		"successful", res.Successful,
		"failed", res.Failed,
		"manual", len(res.ManualInterventionRequired),
		"rolled_back", res.RolledBack,
		"post_status", res.Post.OverallStatus.String())
	return res, nil
}

// batch applies one plan under a held write lock.
type batch struct {
	tx     *ledger.Tx
	res    *Result
	logger *slog.Logger
	// relinkFrom is the first block the hash-chain repair will relink, or
	// -1 when there is no relink in this batch.
	relinkFrom int64
}

func (b *batch) run(ctx context.Context, recs []integrity.Recommendation) error {
	byCategory := make(map[integrity.Category][]integrity.Recommendation)
	for _, rec := range recs {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}
	// Hash-chain blocks include stale block hashes, so the relink starts at
	// the earliest block whose own hash needs recomputing.
	b.relinkFrom = -1
	if links := blocksOf(byCategory[integrity.CategoryHashChain]); len(links) > 0 {
		b.relinkFrom = int64(links[0])
	} else if len(byCategory[integrity.CategoryHashChain]) > 0 {
		b.relinkFrom = 0
	}

	for _, c := range order {
		group := byCategory[c]
		if len(group) == 0 {
			continue
		}
		var err error
		switch c {
		case integrity.CategoryChainLength:
			err = b.chainLength(ctx)
		case integrity.CategoryCorruptedBlock:
			err = b.corruptedBlocks(ctx, blocksOf(group))
		case integrity.CategoryHashChain:
			err = b.relink(ctx)
		case integrity.CategoryCanonicalization:
			err = b.canonicalization(ctx, blocksOf(group))
		case integrity.CategoryTransactionCount:
			err = b.transactionCounts(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) repaired(c integrity.Category, block *uint64, format string, args ...any) {
	b.res.Repaired = append(b.res.Repaired, Issue{Category: c, Block: block, Description: fmt.Sprintf(format, args...)})
	b.logger.Info("repaired", "category", string(c), "block", blockAttr(block), "detail", fmt.Sprintf(format, args...))
}

func (b *batch) failed(c integrity.Category, block *uint64, err error, format string, args ...any) {
	b.res.FailedIssues = append(b.res.FailedIssues, Issue{
		Category: c, Block: block, Description: fmt.Sprintf(format, args...), Error: err.Error(),
	})
	b.logger.Warn("repair failed", "category", string(c), "block", blockAttr(block), "error", err)
}

// chainLength reloads persisted headers that extend the chain and persists
// in-memory blocks whose header is missing or disagrees.
func (b *batch) chainLength(ctx context.Context) error {
	const c = integrity.CategoryChainLength
	rec, err := b.tx.LoadPersistedHeaders(ctx)
	if err != nil {
		return storage(err)
	}
	persisted := make(map[uint64]ledger.Header, len(rec.Headers))
	for _, h := range rec.Headers {
		persisted[h.Index] = h
	}

	for _, blk := range b.tx.Blocks() {
		i := blk.Index
		h, ok := persisted[i]
		switch {
		case !ok:
			if err := b.tx.PersistBlock(ctx, i); err != nil {
				return storage(err)
			}
			b.repaired(c, ptr(i), "persisted block %d missing from the store", i)
		case !headerMatches(b.tx, blk, h):
			if err := b.tx.RewriteHeader(ctx, i); err != nil {
				return storage(err)
			}
			b.repaired(c, ptr(i), "rewrote header %d from the chain", i)
		}
	}

	reloaded := 0
	for {
		next := uint64(b.tx.Len())
		h, ok := persisted[next]
		if !ok {
			break
		}
		if err := b.tx.ReloadBlock(ctx, h); err != nil {
			return storage(err)
		}
		reloaded++
		b.repaired(c, ptr(next), "reloaded block %d from its persisted header", next)
	}
	for _, h := range rec.Headers {
		if h.Index >= uint64(b.tx.Len()) {
			b.failed(c, ptr(h.Index), fmt.Errorf("header %d is past an index gap", h.Index),
				"reload block %d", h.Index)
		}
	}
	if reloaded > 0 {
		counts := b.tx.ReportedCounts()
		total := 0
		for _, n := range counts {
			total += n
		}
		if err := b.tx.RewriteCounts(ctx, counts, total); err != nil {
			return storage(err)
		}
	}
	return nil
}

func headerMatches(r ledger.Reader, blk ledger.Block, h ledger.Header) bool {
	return blk.Timestamp == h.Timestamp &&
		blk.Hash == h.Hash &&
		blk.PreviousHash == h.PreviousHash &&
		r.DataGraph(blk.Index) == h.DataGraph &&
		blk.ValidatorID == h.ValidatorID &&
		blk.Signature == h.Signature &&
		slices.Equal(blk.EncryptedPayload, h.EncryptedPayload) &&
		blk.StateSnapshot == h.StateSnapshot
}

// corruptedBlocks restores each block from whichever side still
// reproduces its hash, preferring the in-memory payload.
func (b *batch) corruptedBlocks(ctx context.Context, indices []uint64) error {
	const c = integrity.CategoryCorruptedBlock
	cz := b.tx.Store().Canonicalizer()
	for _, i := range indices {
		blk, ok := b.tx.Block(i)
		if !ok {
			b.failed(c, ptr(i), fmt.Errorf("block %d is not in the chain", i), "restore block %d", i)
			continue
		}
		stored, err := b.tx.Store().Triples(ctx, b.tx.DataGraph(i))
		if err != nil {
			return storage(err)
		}
		storedHash, err := cz.Hash(stored)
		if err != nil {
			b.failed(c, ptr(i), err, "canonicalize stored graph %d", i)
			continue
		}

		payloadHash := ""
		if payload, err := blk.Triples(); err == nil {
			if payloadHash, err = cz.Hash(payload); err != nil {
				b.failed(c, ptr(i), err, "canonicalize payload %d", i)
				continue
			}
			if reproduces(blk, payloadHash) {
				if payloadHash == storedHash {
					continue
				}
				if err := b.tx.WritePayloadGraph(ctx, i, payload); err != nil {
					return storage(err)
				}
				b.repaired(c, ptr(i), "rewrote stored graph of block %d from its payload", i)
				continue
			}
		}

		if reproduces(blk, storedHash) {
			if err := b.tx.RebuildPayload(ctx, i); err != nil {
				return storage(err)
			}
			b.repaired(c, ptr(i), "rebuilt payload of block %d from its stored graph", i)
			continue
		}
		if payloadHash == storedHash && b.relinkFrom >= 0 && int64(i) >= b.relinkFrom {
			// Payload and store agree; the relink recomputes the hash.
			continue
		}
		b.failed(c, ptr(i), errors.New("neither payload nor stored graph reproduces the block hash"),
			"restore block %d", i)
	}
	return nil
}

func reproduces(blk ledger.Block, payloadHash string) bool {
	h, err := blk.ComputeHash(payloadHash)
	return err == nil && h == blk.Hash
}

// relink recomputes hashes from stored graphs starting at the first broken
// link or stale hash and rewrites every later previous hash.
func (b *batch) relink(ctx context.Context) error {
	const c = integrity.CategoryHashChain
	cz := b.tx.Store().Canonicalizer()
	blocks := b.tx.Blocks()
	start := max(b.relinkFrom, 0)
	for j := start; j < int64(len(blocks)); j++ {
		blk := blocks[j]
		prev := ledger.GenesisPreviousHash
		if j > 0 {
			prev = blocks[j-1].Hash
		}

		stored, err := b.tx.Store().Triples(ctx, b.tx.DataGraph(blk.Index))
		if err != nil {
			return storage(err)
		}
		payload, perr := blk.Triples()
		storedHash, serr := cz.Hash(stored)
		payloadHash, herr := "", perr
		if perr == nil {
			payloadHash, herr = cz.Hash(payload)
		}
		if err := errors.Join(serr, herr); err != nil || storedHash != payloadHash {
			if err == nil {
				err = errors.New("payload disagrees with stored graph")
			}
			b.failed(c, ptr(blk.Index), err, "relink stopped at block %d", blk.Index)
			return nil
		}

		blk.PreviousHash = prev
		h, err := blk.ComputeHash(storedHash)
		if err != nil {
			b.failed(c, ptr(blk.Index), err, "relink block %d", blk.Index)
			return nil
		}
		rehashed := h != blocks[j].Hash
		if !rehashed && prev == blocks[j].PreviousHash {
			continue
		}
		blk.Hash = h
		blocks[j] = blk
		if err := b.tx.ReplaceBlock(ctx, blk); err != nil {
			return storage(err)
		}
		b.repaired(c, ptr(blk.Index), "relinked block %d", blk.Index)
		if rehashed && !blk.IsGenesis() && b.tx.VerifySignature(blk) != nil {
			b.res.ManualInterventionRequired = append(b.res.ManualInterventionRequired,
				fmt.Sprintf("block %d: signature by %s no longer covers the relinked hash; re-sign required", blk.Index, blk.ValidatorID))
		}
	}
	return nil
}

// canonicalization drops the canonical cache and re-derives each affected
// graph with both algorithms.
func (b *batch) canonicalization(ctx context.Context, indices []uint64) error {
	const c = integrity.CategoryCanonicalization
	s := b.tx.Store()
	s.InvalidateCanonicalCache()
	cz := s.Canonicalizer()
	for _, i := range indices {
		graph := graphstore.BlockGraph(i)
		triples, err := s.Triples(ctx, graph)
		if err != nil {
			return storage(err)
		}
		custom, cerr := cz.HashWith(canon.Custom, triples)
		rdfc, rerr := cz.HashWith(canon.RDFC, triples)
		if err := errors.Join(cerr, rerr); err != nil {
			b.failed(c, ptr(i), err, "re-derive canonical form of %s", graph)
			continue
		}
		if custom != rdfc && canon.AnalyzeComplexity(triples).Complexity == canon.Simple {
			b.failed(c, ptr(i), errors.New("algorithms disagree on a simple graph"), "re-derive canonical form of %s", graph)
			continue
		}
		if _, err := s.Canonicalize(ctx, graph); err != nil {
			b.failed(c, ptr(i), err, "re-derive canonical form of %s", graph)
			continue
		}
		b.repaired(c, ptr(i), "re-derived canonical form of %s", graph)
	}
	return nil
}

// transactionCounts rewrites every count from the stored graphs.
func (b *batch) transactionCounts(ctx context.Context) error {
	const c = integrity.CategoryTransactionCount
	n := b.tx.Len()
	counts := make([]int, n)
	total := 0
	for i := range n {
		size, err := b.tx.Store().GraphLen(ctx, b.tx.DataGraph(uint64(i)))
		if err != nil {
			return storage(err)
		}
		counts[i] = size
		total += size
	}
	if err := b.tx.RewriteCounts(ctx, counts, total); err != nil {
		return storage(err)
	}
	b.repaired(c, nil, "rewrote %d block counts and the aggregate (%d)", n, total)
	return nil
}

func blocksOf(recs []integrity.Recommendation) []uint64 {
	var out []uint64
	for _, rec := range recs {
		out = append(out, rec.Blocks...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func ptr(i uint64) *uint64 { return &i }

func blockAttr(block *uint64) any {
	if block == nil {
		return "-"
	}
	return *block
}
