package integrity

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/semledger/internal/canon"
	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/rdf"
)

// determinismRuns is how often graphs with blank nodes are re-canonicalized.
const determinismRuns = 3

// payloadGraphs returns block graphs after genesis in index order. A
// positive sample keeps only the last sample of them.
func payloadGraphs(ctx context.Context, s *graphstore.Store, sample int) ([]string, error) {
	names, err := s.Graphs(ctx)
	if err != nil {
		return nil, err
	}
	type indexed struct {
		name string
		i    uint64
	}
	var graphs []indexed
	for _, g := range names {
		if i, ok := graphstore.ParseBlockGraph(g); ok && i > 0 {
			graphs = append(graphs, indexed{g, i})
		}
	}
	slices.SortFunc(graphs, func(a, b indexed) int {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	})
	if sample > 0 && sample < len(graphs) {
		graphs = graphs[len(graphs)-sample:]
	}
	out := make([]string, len(graphs))
	for i, g := range graphs {
		out[i] = g.name
	}
	return out, nil
}

func checkCanonicalization(ctx context.Context, r ledger.Reader, sample int) CanonicalizationStatus {
	var st CanonicalizationStatus
	s := r.Store()
	c := s.Canonicalizer()

	graphs, err := payloadGraphs(ctx, s, sample)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("list graphs: %v", err))
		st.Status = Warning
		return st
	}

	for _, g := range graphs {
		if err := ctx.Err(); err != nil {
			st.Errors = append(st.Errors, err.Error())
			break
		}
		triples, err := s.Triples(ctx, g)
		if err != nil {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", g, err))
			continue
		}
		a := canon.AnalyzeComplexity(triples)
		gc := GraphCanon{Graph: g, Complexity: a.Complexity.String(), Deterministic: true}

		customHash, cerr := c.HashWith(canon.Custom, triples)
		rdfcHash, rerr := c.HashWith(canon.RDFC, triples)
		if cerr != nil || rerr != nil {
			st.Failures = append(st.Failures, fmt.Sprintf("%s: %v", g, firstErr(cerr, rerr)))
		}
		gc.Custom, gc.RDFC = customHash, rdfcHash
		gc.Agree = cerr == nil && rerr == nil && customHash == rdfcHash
		if cerr == nil && rerr == nil && !gc.Agree {
			st.Disagreements = append(st.Disagreements, g)
			switch a.Complexity {
			case canon.Simple:
				st.CriticalDisagreements = append(st.CriticalDisagreements, g)
				raise(&st.Status, Critical)
			case canon.Moderate:
				raise(&st.Status, Warning)
			}
		}

		if a.BlankNodes > 0 && !deterministic(c, triples, customHash, rdfcHash) {
			gc.Deterministic = false
			st.Nondeterministic = append(st.Nondeterministic, g)
			raise(&st.Status, Critical)
		}

		if cached, ok := s.CachedCanonical(g); ok {
			gc.Cached = true
			fresh, err := c.Hash(triples)
			if err != nil {
				st.Failures = append(st.Failures, fmt.Sprintf("%s: %v", g, err))
			} else if fresh != cached {
				gc.CacheDrift = true
				st.CacheDrift = append(st.CacheDrift, g)
				raise(&st.Status, Warning)
			}
		}
		st.Graphs = append(st.Graphs, gc)
	}

	if len(st.Failures) > 0 || len(st.Errors) > 0 {
		raise(&st.Status, Warning)
	}
	return st
}

// deterministic re-runs both algorithms over reordered copies of triples
// and reports whether every run reproduced the first hashes.
func deterministic(c *canon.Canonicalizer, triples []rdf.Triple, customHash, rdfcHash string) bool {
	for run := range determinismRuns {
		order := reorder(triples, run)
		if customHash != "" {
			if h, err := c.HashWith(canon.Custom, order); err != nil || h != customHash {
				return false
			}
		}
		if rdfcHash != "" {
			if h, err := c.HashWith(canon.RDFC, order); err != nil || h != rdfcHash {
				return false
			}
		}
	}
	return true
}

// reorder returns triples reversed on odd runs and rotated by run otherwise.
func reorder(triples []rdf.Triple, run int) []rdf.Triple {
	if len(triples) == 0 {
		return nil
	}
	if run%2 == 1 {
		out := slices.Clone(triples)
		slices.Reverse(out)
		return out
	}
	k := run % len(triples)
	out := make([]rdf.Triple, 0, len(triples))
	out = append(out, triples[k:]...)
	return append(out, triples[:k]...)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
