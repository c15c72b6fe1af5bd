package integrity

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/semledger/internal/graphstore"
)

// recommend derives recommendations from the phase findings, in category
// order.
func recommend(r *Report) []Recommendation {
	var recs []Recommendation
	add := func(rec Recommendation) {
		rec.Blocks = slices.Compact(slices.Sorted(slices.Values(rec.Blocks)))
		recs = append(recs, rec)
	}
	bc := &r.Blockchain

	// chain-length
	if len(bc.MissingFromStore) > 0 || len(bc.MissingFromChain) > 0 || len(bc.HeaderMismatches) > 0 {
		var blocks []uint64
		blocks = append(blocks, bc.MissingFromStore...)
		blocks = append(blocks, bc.MissingFromChain...)
		for _, m := range bc.HeaderMismatches {
			blocks = append(blocks, m.Index)
		}
		add(Recommendation{
			Severity: SeverityCritical,
			Category: CategoryChainLength,
			Description: fmt.Sprintf("chain and metadata disagree: %d block(s) not persisted, %d header(s) not loaded, %d header field mismatch(es)",
				len(bc.MissingFromStore), len(bc.MissingFromChain), len(bc.HeaderMismatches)),
			ActionRequired: "reload persisted headers missing from memory and persist in-memory blocks missing from the store",
			AutoFixable:    true,
			Blocks:         blocks,
		})
	}
	if len(bc.IndexGaps) > 0 || len(bc.ReconstructionErrors) > 0 {
		add(Recommendation{
			Severity: SeverityWarning,
			Category: CategoryChainLength,
			Description: fmt.Sprintf("metadata graph has %d index gap(s) and %d malformed header(s)",
				len(bc.IndexGaps), len(bc.ReconstructionErrors)),
			ActionRequired: "inspect the metadata graph; headers past a gap cannot be reloaded",
			Blocks:         bc.IndexGaps,
		})
	}

	// hash-chain
	var links []uint64
	for _, m := range bc.HashMismatches {
		if m.Kind == KindPreviousHash {
			links = append(links, m.Index)
		}
	}
	stale := 0
	for _, cb := range bc.CorruptedBlocks {
		if cb.StaleHash {
			links = append(links, cb.Index)
			stale++
		}
	}
	if len(links) > 0 {
		add(Recommendation{
			Severity: SeverityCritical,
			Category: CategoryHashChain,
			Description: fmt.Sprintf("previous-hash linkage broken at %d block(s), stale block hash at %d",
				len(links)-stale, stale),
			ActionRequired: "recompute the first broken block from its stored payload and relink every later block; relinked signatures must be re-issued",
			AutoFixable:    true,
			Blocks:         links,
		})
	}

	// corrupted-block
	if len(bc.CorruptedBlocks) > 0 {
		sev := SeverityCritical
		if bc.Status == Corrupted {
			sev = SeverityEmergency
		}
		var blocks []uint64
		for _, cb := range bc.CorruptedBlocks {
			blocks = append(blocks, cb.Index)
		}
		add(Recommendation{
			Severity:       sev,
			Category:       CategoryCorruptedBlock,
			Description:    fmt.Sprintf("%d block(s) have stored graphs that disagree with their hash or payload", len(blocks)),
			ActionRequired: "restore each stored graph or payload from whichever side still reproduces the block hash",
			AutoFixable:    true,
			Blocks:         blocks,
		})
	}

	// transaction-count
	tc := &r.TransactionCount
	if len(tc.Discrepancies) > 0 || tc.AggregateDiscrepancy > 0 {
		sev := SeverityWarning
		if tc.Status >= Critical {
			sev = SeverityCritical
		}
		var blocks []uint64
		for _, d := range tc.Discrepancies {
			blocks = append(blocks, d.Index)
		}
		desc := fmt.Sprintf("%d block count discrepancy(ies), aggregate off by %d", len(tc.Discrepancies), tc.AggregateDiscrepancy)
		if tc.Pattern != "" {
			desc += " (" + tc.Pattern + ")"
		}
		add(Recommendation{
			Severity:       sev,
			Category:       CategoryTransactionCount,
			Description:    desc,
			ActionRequired: "rewrite per-block and aggregate counters from the stored graphs",
			AutoFixable:    true,
			Blocks:         blocks,
		})
	}

	// query-consistency
	q := &r.Query
	if len(q.MissingGraphs) > 0 || len(q.InaccessibleGraphs) > 0 {
		add(Recommendation{
			Severity: SeverityCritical,
			Category: CategoryQuery,
			Description: fmt.Sprintf("%d block graph(s) missing and %d inaccessible",
				len(q.MissingGraphs), len(q.InaccessibleGraphs)),
			ActionRequired: "check store integrity; missing payload graphs are restored by corrupted-block repair",
			Blocks:         graphIndices(append(slices.Clone(q.MissingGraphs), q.InaccessibleGraphs...)),
		})
	}
	if drifted := inconsistentResults(q); len(q.CountDrifts) > 0 || len(drifted) > 0 {
		var graphs []string
		for _, d := range q.CountDrifts {
			graphs = append(graphs, d.Graph)
		}
		add(Recommendation{
			Severity:       SeverityWarning,
			Category:       CategoryQuery,
			Description:    fmt.Sprintf("query results drift from direct reads: %s", strings.Join(append(drifted, graphs...), ", ")),
			ActionRequired: "re-run validation; persistent drift indicates a store defect",
			Blocks:         graphIndices(graphs),
		})
	}

	// canonicalization
	cs := &r.Canonicalization
	if len(cs.CacheDrift) > 0 {
		add(Recommendation{
			Severity:       SeverityWarning,
			Category:       CategoryCanonicalization,
			Description:    fmt.Sprintf("canonical cache is stale for %d graph(s)", len(cs.CacheDrift)),
			ActionRequired: "invalidate the canonical cache and re-derive the affected graphs",
			AutoFixable:    true,
			Blocks:         graphIndices(cs.CacheDrift),
		})
	}
	if len(cs.CriticalDisagreements) > 0 || len(cs.Nondeterministic) > 0 {
		affected := append(slices.Clone(cs.CriticalDisagreements), cs.Nondeterministic...)
		add(Recommendation{
			Severity: SeverityCritical,
			Category: CategoryCanonicalization,
			Description: fmt.Sprintf("canonicalization defect: %d simple-graph disagreement(s), %d nondeterministic graph(s)",
				len(cs.CriticalDisagreements), len(cs.Nondeterministic)),
			ActionRequired: "investigate the canonicalizer; block hashes over these graphs are not reliable",
			Blocks:         graphIndices(affected),
		})
	}
	if len(cs.Failures) > 0 {
		add(Recommendation{
			Severity:       SeverityWarning,
			Category:       CategoryCanonicalization,
			Description:    fmt.Sprintf("canonicalization failed for %d graph(s)", len(cs.Failures)),
			ActionRequired: "raise the canonicalization work limit or reduce blank node density",
		})
	}

	// performance
	var slow []string
	for _, p := range []struct {
		name string
		info *PhaseInfo
	}{
		{PhaseChain, &bc.PhaseInfo},
		{PhaseTransactionCount, &tc.PhaseInfo},
		{PhaseQuery, &q.PhaseInfo},
		{PhaseCanonicalization, &cs.PhaseInfo},
	} {
		if p.info.BudgetExceeded {
			slow = append(slow, p.name)
		}
	}
	if len(slow) > 0 {
		add(Recommendation{
			Severity:       SeverityWarning,
			Category:       CategoryPerformance,
			Description:    "phase budget exceeded: " + strings.Join(slow, ", "),
			ActionRequired: "lower the validation level or raise the phase budget",
		})
	}
	return recs
}

func inconsistentResults(q *QueryStatus) []string {
	var out []string
	for _, qr := range q.Results {
		if !qr.Consistent {
			out = append(out, qr.Name)
		}
	}
	return out
}

// graphIndices maps block graph names to indices, skipping other graphs.
func graphIndices(graphs []string) []uint64 {
	var out []uint64
	for _, g := range graphs {
		if i, ok := graphstore.ParseBlockGraph(g); ok {
			out = append(out, i)
		}
	}
	return out
}
