package integrity

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/semledger/internal/gquery"
	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/rdf"
)

// Battery query names.
const (
	QueryTotalCount      = "total-count"
	QueryGraphEnumerate  = "graph-enumeration"
	QueryMetadataIndices = "metadata-index-count"
	QueryBlockGraphSizes = "block-graph-sizes"
)

var spo = []gquery.Pattern{{S: gquery.V("s"), P: gquery.V("p"), O: gquery.V("o")}}

func checkQueries(ctx context.Context, r ledger.Reader) QueryStatus {
	var st QueryStatus
	s := r.Store()
	fail := func(name string, err error) {
		st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", name, err))
	}

	// Total statement count.
	total := gquery.Count{Graph: gquery.AnyGraph(), Where: spo}
	if got, err := queryTotal(ctx, s, total); err != nil {
		fail(QueryTotalCount, err)
	} else if want, err := s.Len(ctx); err != nil {
		fail(QueryTotalCount, err)
	} else {
		st.record(QueryTotalCount, total, int64(want), got)
	}

	// Distinct graphs.
	enum := gquery.Select{Graph: gquery.GraphVar("g"), Where: spo, Vars: []string{"g"}, Distinct: true}
	graphs, err := s.Graphs(ctx)
	if err != nil {
		fail(QueryGraphEnumerate, err)
	} else if res, err := s.Query(ctx, enum); err != nil {
		fail(QueryGraphEnumerate, err)
	} else {
		var queried []string
		for _, sol := range res.Solutions {
			if iri, ok := sol["g"].(rdf.IRI); ok {
				queried = append(queried, iri.Value)
			}
		}
		for _, g := range graphs {
			if !slices.Contains(queried, g) {
				st.InaccessibleGraphs = append(st.InaccessibleGraphs, g)
			}
		}
		st.record(QueryGraphEnumerate, enum, int64(len(graphs)), int64(len(queried)))
	}

	// Metadata headers.
	indices := gquery.Count{
		Graph: gquery.InGraph(graphstore.MetadataGraph),
		Where: []gquery.Pattern{{S: gquery.V("h"), P: gquery.IRI(ledger.PredIndex), O: gquery.V("i")}},
	}
	if got, err := queryTotal(ctx, s, indices); err != nil {
		fail(QueryMetadataIndices, err)
	} else {
		st.record(QueryMetadataIndices, indices, int64(r.Len()), got)
	}

	// Per-block-graph sizes.
	sizes := gquery.Count{
		Graph:   gquery.GraphVar("g"),
		Where:   spo,
		Filters: []gquery.Filter{gquery.StrStarts{Var: "g", Prefix: graphstore.BlockGraphPrefix}},
		GroupBy: "g",
	}
	grouped := map[string]int64{}
	if res, err := s.Query(ctx, sizes); err != nil {
		fail(QueryBlockGraphSizes, err)
	} else {
		for i, sol := range res.Solutions {
			iri, ok := sol["g"].(rdf.IRI)
			if !ok {
				continue
			}
			n, err := res.Int(i, gquery.CountVar)
			if err != nil {
				fail(QueryBlockGraphSizes, err)
				continue
			}
			grouped[iri.Value] = n
		}
		var want, got int64
		for _, g := range graphs {
			if _, ok := graphstore.ParseBlockGraph(g); !ok {
				continue
			}
			direct, err := s.GraphLen(ctx, g)
			if err != nil {
				fail(QueryBlockGraphSizes, err)
				continue
			}
			want += int64(direct)
			got += grouped[g]
			if grouped[g] != int64(direct) {
				st.CountDrifts = append(st.CountDrifts, CountDrift{Graph: g, Expected: int64(direct), Actual: grouped[g]})
			}
		}
		st.record(QueryBlockGraphSizes, sizes, want, got)
	}

	// Every block graph with statements must answer ASK.
	counts := r.ReportedCounts()
	for i, n := range counts {
		if n == 0 {
			continue
		}
		g := r.DataGraph(uint64(i))
		res, err := s.Query(ctx, gquery.Ask{Graph: gquery.InGraph(g), Where: spo})
		switch {
		case err != nil:
			st.InaccessibleGraphs = append(st.InaccessibleGraphs, g)
			fail("ask "+g, err)
		case !res.Boolean:
			st.MissingGraphs = append(st.MissingGraphs, g)
		}
	}

	switch {
	case len(st.MissingGraphs) > 0, len(st.InaccessibleGraphs) > 0:
		st.Status = Critical
	case len(st.CountDrifts) > 0, len(st.Errors) > 0:
		st.Status = Warning
	}
	for _, qr := range st.Results {
		if !qr.Consistent {
			raise(&st.Status, Warning)
		}
	}
	return st
}

func (st *QueryStatus) record(name string, q gquery.Query, want, got int64) {
	st.Results = append(st.Results, QueryResult{
		Name:       name,
		Query:      gquery.Format(q),
		Expected:   want,
		Actual:     got,
		Consistent: want == got,
	})
}

func queryTotal(ctx context.Context, s *graphstore.Store, q gquery.Count) (int64, error) {
	res, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.Total()
}
