package graphstore

import (
	"context"
	"fmt"

	"github.com/roach88/semledger/internal/gquery"
	"github.com/roach88/semledger/internal/gquerysql"
	"github.com/roach88/semledger/internal/rdf"
)

// iteratePageSize bounds how many rows Iterate holds before calling back.
const iteratePageSize = 512

// Query runs a gquery query. Rows are fully read and closed before
// returning, so callers may issue further store calls while holding the result.
func (s *Store) Query(ctx context.Context, q gquery.Query) (*gquery.Result, error) {
	compiled, err := gquerysql.Compile(q)
	if err != nil {
		return nil, err
	}
	switch q.(type) {
	case gquery.Ask, *gquery.Ask:
		var exists int
		if err := s.db.QueryRowContext(ctx, compiled.SQL, compiled.Params...).Scan(&exists); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return &gquery.Result{Kind: gquery.Boolean, Boolean: exists != 0}, nil
	case gquery.Count, *gquery.Count:
		return s.queryCount(ctx, compiled)
	case gquery.Construct, *gquery.Construct:
		return s.queryConstruct(ctx, compiled)
	default:
		return s.querySelect(ctx, compiled)
	}
}

func (s *Store) querySelect(ctx context.Context, c *gquerysql.Compiled) (*gquery.Result, error) {
	rows, err := s.db.QueryContext(ctx, c.SQL, c.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	result := &gquery.Result{Kind: gquery.Solutions, Vars: c.Columns, Solutions: []gquery.Solution{}}
	raw := make([]string, len(c.Columns))
	dest := make([]any, len(c.Columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("query: scan: %w", err)
		}
		sol := make(gquery.Solution, len(c.Columns))
		for i, v := range c.Columns {
			term, err := rdf.ParseTerm(raw[i])
			if err != nil {
				return nil, fmt.Errorf("query: decode ?%s: %w", v, err)
			}
			sol[v] = term
		}
		result.Solutions = append(result.Solutions, sol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return result, nil
}

func (s *Store) queryCount(ctx context.Context, c *gquerysql.Compiled) (*gquery.Result, error) {
	result := &gquery.Result{Kind: gquery.Solutions, Vars: c.Columns, Solutions: []gquery.Solution{}}
	if len(c.Columns) == 1 {
		var n int64
		if err := s.db.QueryRowContext(ctx, c.SQL, c.Params...).Scan(&n); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		result.Solutions = append(result.Solutions, gquery.Solution{gquery.CountVar: rdf.NewInteger(n)})
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, c.SQL, c.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("query: scan: %w", err)
		}
		term, err := rdf.ParseTerm(key)
		if err != nil {
			return nil, fmt.Errorf("query: decode ?%s: %w", c.Columns[0], err)
		}
		result.Solutions = append(result.Solutions, gquery.Solution{
			c.Columns[0]:     term,
			gquery.CountVar: rdf.NewInteger(n),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return result, nil
}

func (s *Store) queryConstruct(ctx context.Context, c *gquerysql.Compiled) (*gquery.Result, error) {
	rows, err := s.db.QueryContext(ctx, c.SQL, c.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	raw := make([]string, len(c.Columns))
	dest := make([]any, len(c.Columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	var triples []rdf.Triple
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("query: scan: %w", err)
		}
		for i := 0; i+2 < len(raw); i += 3 {
			t, err := decodeTriple(raw[i], raw[i+1], raw[i+2])
			if err != nil {
				return nil, fmt.Errorf("query: %w", err)
			}
			triples = append(triples, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return &gquery.Result{Kind: gquery.Graph, Triples: rdf.Dedup(triples)}, nil
}

// Len returns the number of quads in the store.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM quads").Scan(&n); err != nil {
		return 0, fmt.Errorf("len: %w", err)
	}
	return n, nil
}

// GraphLen returns the number of triples in a named graph.
func (s *Store) GraphLen(ctx context.Context, graph string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quads WHERE graph = ?", rdf.NewIRI(graph).String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("graph len %s: %w", graph, err)
	}
	return n, nil
}

// Graphs lists every non-empty named graph in code point order.
func (s *Store) Graphs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT graph FROM quads ORDER BY graph COLLATE BINARY")
	if err != nil {
		return nil, fmt.Errorf("graphs: %w", err)
	}
	defer rows.Close()

	graphs := []string{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("graphs: scan: %w", err)
		}
		iri, err := decodeIRI(raw)
		if err != nil {
			return nil, fmt.Errorf("graphs: %w", err)
		}
		graphs = append(graphs, iri.Value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("graphs: %w", err)
	}
	return graphs, nil
}

// Triples returns a graph's triples in insertion order.
// An empty or missing graph yields an empty slice.
func (s *Store) Triples(ctx context.Context, graph string) ([]rdf.Triple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, predicate, object FROM quads
		WHERE graph = ?
		ORDER BY id ASC
	`, rdf.NewIRI(graph).String())
	if err != nil {
		return nil, fmt.Errorf("triples %s: %w", graph, err)
	}
	defer rows.Close()

	triples := []rdf.Triple{}
	for rows.Next() {
		var subj, pred, obj string
		if err := rows.Scan(&subj, &pred, &obj); err != nil {
			return nil, fmt.Errorf("triples %s: scan: %w", graph, err)
		}
		t, err := decodeTriple(subj, pred, obj)
		if err != nil {
			return nil, fmt.Errorf("triples %s: %w", graph, err)
		}
		triples = append(triples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("triples %s: %w", graph, err)
	}
	return triples, nil
}

// Iterate calls fn for every quad in insertion order. Rows are read in
// pages and released before fn runs, so fn may call back into the store.
// Iteration stops at the first error fn returns.
func (s *Store) Iterate(ctx context.Context, fn func(rdf.Quad) error) error {
	var after int64
	for {
		page, last, err := s.page(ctx, after)
		if err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		for _, q := range page {
			if err := fn(q); err != nil {
				return err
			}
		}
		if len(page) < iteratePageSize {
			return nil
		}
		after = last
	}
}

func (s *Store) page(ctx context.Context, after int64) ([]rdf.Quad, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph, subject, predicate, object FROM quads
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, after, iteratePageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quads []rdf.Quad
	last := after
	for rows.Next() {
		var graph, subj, pred, obj string
		if err := rows.Scan(&last, &graph, &subj, &pred, &obj); err != nil {
			return nil, 0, err
		}
		q, err := decodeQuad(graph, subj, pred, obj)
		if err != nil {
			return nil, 0, err
		}
		quads = append(quads, q)
	}
	return quads, last, rows.Err()
}

// Quads returns every quad in the store in insertion order.
func (s *Store) Quads(ctx context.Context) ([]rdf.Quad, error) {
	quads := []rdf.Quad{}
	err := s.Iterate(ctx, func(q rdf.Quad) error {
		quads = append(quads, q)
		return nil
	})
	return quads, err
}

func decodeTriple(subj, pred, obj string) (rdf.Triple, error) {
	s, err := rdf.ParseTerm(subj)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("decode subject %q: %w", subj, err)
	}
	p, err := decodeIRI(pred)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("decode predicate: %w", err)
	}
	o, err := rdf.ParseTerm(obj)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("decode object %q: %w", obj, err)
	}
	return rdf.Triple{Subject: s, Predicate: p, Object: o}, nil
}

func decodeQuad(graph, subj, pred, obj string) (rdf.Quad, error) {
	g, err := decodeIRI(graph)
	if err != nil {
		return rdf.Quad{}, fmt.Errorf("decode graph: %w", err)
	}
	t, err := decodeTriple(subj, pred, obj)
	if err != nil {
		return rdf.Quad{}, err
	}
	return rdf.Quad{Triple: t, Graph: g}, nil
}

func decodeIRI(raw string) (rdf.IRI, error) {
	term, err := rdf.ParseTerm(raw)
	if err != nil {
		return rdf.IRI{}, err
	}
	iri, ok := term.(rdf.IRI)
	if !ok {
		return rdf.IRI{}, fmt.Errorf("%q is not an IRI", raw)
	}
	return iri, nil
}
