package graphstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/semledger/internal/rdf"
)

// Match selects quads for removal. Graph is required; Subject and
// Predicate narrow the match when set.
type Match struct {
	Graph     string
	Subject   rdf.Term
	Predicate *rdf.IRI
}

// AddToGraph parses a Turtle or N-Triples document and adds its triples to
// the named graph. It returns the number of distinct statements parsed.
// A parse error is returned unchanged so callers can inspect its position.
func (s *Store) AddToGraph(ctx context.Context, text, graph string) (int, error) {
	if err := ValidateGraphName(graph); err != nil {
		return 0, err
	}
	triples, err := rdf.Parse(text)
	if err != nil {
		return 0, err
	}
	triples = rdf.Dedup(triples)
	if err := s.AddTriples(ctx, graph, triples); err != nil {
		return 0, err
	}
	return len(triples), nil
}

// AddTriples adds triples to the named graph in one transaction.
// Triples already present are ignored.
func (s *Store) AddTriples(ctx context.Context, graph string, triples []rdf.Triple) error {
	if err := ValidateGraphName(graph); err != nil {
		return err
	}
	return s.AddQuads(ctx, rdf.InGraph(rdf.NewIRI(graph), triples))
}

// AddQuads inserts quads in one transaction.
func (s *Store) AddQuads(ctx context.Context, quads []rdf.Quad) error {
	if len(quads) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertQuads(ctx, tx, quads)
	})
	if err != nil {
		return fmt.Errorf("add quads: %w", err)
	}
	graphs := make(map[string]struct{})
	for _, q := range quads {
		graphs[q.Graph.Value] = struct{}{}
	}
	for g := range graphs {
		s.invalidate(g)
	}
	return nil
}

// RemoveQuads deletes the quads selected by m and returns how many went.
func (s *Store) RemoveQuads(ctx context.Context, m Match) (int64, error) {
	if err := ValidateGraphName(m.Graph); err != nil {
		return 0, err
	}
	query := "DELETE FROM quads WHERE graph = ?"
	args := []any{rdf.NewIRI(m.Graph).String()}
	if m.Subject != nil {
		query += " AND subject = ?"
		args = append(args, m.Subject.String())
	}
	if m.Predicate != nil {
		query += " AND predicate = ?"
		args = append(args, m.Predicate.String())
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("remove quads: %w", err)
	}
	s.invalidate(m.Graph)
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove quads: %w", err)
	}
	return n, nil
}

// ClearGraph removes every triple in the named graph.
func (s *Store) ClearGraph(ctx context.Context, graph string) (int64, error) {
	return s.RemoveQuads(ctx, Match{Graph: graph})
}

// ReplaceGraph swaps a graph's content for triples in one transaction.
func (s *Store) ReplaceGraph(ctx context.Context, graph string, triples []rdf.Triple) error {
	if err := ValidateGraphName(graph); err != nil {
		return err
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM quads WHERE graph = ?", rdf.NewIRI(graph).String()); err != nil {
			return err
		}
		return insertQuads(ctx, tx, rdf.InGraph(rdf.NewIRI(graph), triples))
	})
	s.invalidate(graph)
	if err != nil {
		return fmt.Errorf("replace graph %s: %w", graph, err)
	}
	return nil
}

func insertQuads(ctx context.Context, tx *sql.Tx, quads []rdf.Quad) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO quads (graph, subject, predicate, object)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, q := range quads {
		if q.Subject == nil || q.Object == nil {
			return fmt.Errorf("quad in %s has a nil term", q.Graph.Value)
		}
		if _, err := stmt.ExecContext(ctx,
			q.Graph.String(), q.Subject.String(), q.Predicate.String(), q.Object.String(),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
