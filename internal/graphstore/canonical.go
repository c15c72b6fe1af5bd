package graphstore

import (
	"context"
	"fmt"

	"github.com/roach88/semledger/internal/canon"
)

// Canonicalize returns the canonical hash of a named graph using adaptive
// algorithm selection. Results are cached per graph until the graph is
// written through this store or the cache is invalidated.
func (s *Store) Canonicalize(ctx context.Context, graph string) (string, error) {
	if h, ok := s.CachedCanonical(graph); ok {
		return h, nil
	}
	h, err := s.CanonicalizeWith(ctx, canon.Adaptive, graph)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.canonical[graph] = h
	s.mu.Unlock()
	return h, nil
}

// CanonicalizeWith hashes a graph with a fixed algorithm. It never reads
// or fills the cache.
func (s *Store) CanonicalizeWith(ctx context.Context, alg canon.Algorithm, graph string) (string, error) {
	triples, err := s.Triples(ctx, graph)
	if err != nil {
		return "", err
	}
	h, err := s.canon.HashWith(alg, triples)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", graph, err)
	}
	return h, nil
}

// CachedCanonical returns the cached canonical hash for a graph, if any.
func (s *Store) CachedCanonical(graph string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.canonical[graph]
	return h, ok
}

// InvalidateCanonicalCache drops every cached canonical hash.
func (s *Store) InvalidateCanonicalCache() {
	s.mu.Lock()
	s.canonical = make(map[string]string)
	s.mu.Unlock()
}

func (s *Store) invalidate(graph string) {
	s.mu.Lock()
	delete(s.canonical, graph)
	s.mu.Unlock()
}
