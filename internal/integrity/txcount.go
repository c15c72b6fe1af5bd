package integrity

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/semledger/internal/gquery"
	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/rdf"
)

// MaxParseBytes is the largest payload counted by parsing. Larger payloads
// are line-counted.
const MaxParseBytes = 1 << 20

// criticalAggregateDrift is the aggregate discrepancy above which the
// phase is Critical.
const criticalAggregateDrift = 10

// Count methods.
const (
	MethodParse     = "parse"
	MethodLineCount = "line-count"
)

// CountStatements returns the number of statements in a payload and the
// method used to count them.
func CountStatements(payload string) (int, string) {
	if len(payload) <= MaxParseBytes {
		if triples, err := rdf.Parse(payload); err == nil {
			return len(rdf.Dedup(triples)), MethodParse
		}
	}
	return lineCount(payload), MethodLineCount
}

// lineCount counts lines that are not blank, comments or directives.
func lineCount(payload string) int {
	n := 0
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "",
			strings.HasPrefix(line, "#"),
			strings.HasPrefix(line, "@prefix"),
			strings.HasPrefix(line, "@base"),
			hasDirective(line, "PREFIX"),
			hasDirective(line, "BASE"):
			continue
		}
		n++
	}
	return n
}

func hasDirective(line, kw string) bool {
	return len(line) > len(kw) && strings.EqualFold(line[:len(kw)], kw) && (line[len(kw)] == ' ' || line[len(kw)] == '\t')
}

func checkTransactionCounts(ctx context.Context, r ledger.Reader) TransactionCountStatus {
	var st TransactionCountStatus
	blocks := r.Blocks()
	counts := r.ReportedCounts()
	s := r.Store()

	var over, under int
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			st.Errors = append(st.Errors, err.Error())
			break
		}
		reported := countAt(counts, b.Index)
		st.ComputedTotal += reported
		actual, method := CountStatements(b.Payload)
		stored, err := s.GraphLen(ctx, r.DataGraph(b.Index))
		if err != nil {
			st.Errors = append(st.Errors, fmt.Sprintf("block %d: %v", b.Index, err))
			continue
		}
		if reported == actual && stored == actual {
			continue
		}
		st.Discrepancies = append(st.Discrepancies, CountDiscrepancy{
			Index: b.Index, Reported: reported, Actual: actual, Stored: stored, Method: method,
		})
		switch {
		case reported > actual:
			over++
		case reported < actual:
			under++
		}
	}

	st.ReportedTotal = r.TotalTransactions()
	storeTotal, err := blockGraphTotal(ctx, s)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("store total: %v", err))
	}
	st.StoreTotal = storeTotal
	st.AggregateDiscrepancy = max(abs(st.ReportedTotal-st.ComputedTotal), abs(st.ReportedTotal-st.StoreTotal))

	switch {
	case over >= 2 && over >= under:
		st.Pattern = PatternOverCounting
	case under >= 2:
		st.Pattern = PatternUnderCounting
	}

	switch {
	case st.AggregateDiscrepancy > criticalAggregateDrift:
		st.Status = Critical
	case st.AggregateDiscrepancy > 0, len(st.Discrepancies) > 0, len(st.Errors) > 0:
		st.Status = Warning
	}
	return st
}

// blockGraphTotal counts statements across every block payload graph.
// Graphs that share the prefix without naming a block index are skipped.
func blockGraphTotal(ctx context.Context, s *graphstore.Store) (int, error) {
	res, err := s.Query(ctx, blockGraphTotalQuery)
	if err != nil {
		return 0, err
	}
	total := 0
	for i, sol := range res.Solutions {
		iri, ok := sol["g"].(rdf.IRI)
		if !ok {
			continue
		}
		if _, ok := graphstore.ParseBlockGraph(iri.Value); !ok {
			continue
		}
		n, err := res.Int(i, gquery.CountVar)
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

var blockGraphTotalQuery = gquery.Count{
	Graph:   gquery.GraphVar("g"),
	Where:   []gquery.Pattern{{S: gquery.V("s"), P: gquery.V("p"), O: gquery.V("o")}},
	Filters: []gquery.Filter{gquery.StrStarts{Var: "g", Prefix: graphstore.BlockGraphPrefix}},
	GroupBy: "g",
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
