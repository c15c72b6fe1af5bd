package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/rdf"
)

func TestAddToGraph_ReturnsStatementCount(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	n, err := s.AddToGraph(ctx, `
		ex:alice ex:knows ex:bob ;
		         ex:name "Alice" .
		ex:bob ex:name "Bob" .
	`, "ex:people")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.GraphLen(ctx, "ex:people")
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestAddToGraph_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		_, err := s.AddToGraph(ctx, "ex:a ex:b ex:c .", "ex:g")
		require.NoError(t, err)
	}
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAddToGraph_DuplicateStatementsCountOnce(t *testing.T) {
	s := createTestStore(t)

	n, err := s.AddToGraph(t.Context(), "ex:a ex:b ex:c .\nex:a ex:b ex:c .", "ex:g")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAddToGraph_ParseErrorLeavesStoreUntouched(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.AddToGraph(ctx, "ex:a ex:b ex:c .\nex:a ex:b", "ex:g")
	var perr *rdf.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddToGraph_InvalidGraph(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AddToGraph(t.Context(), "ex:a ex:b ex:c .", "not a graph")
	assert.ErrorIs(t, err, ErrInvalidGraphName)
}

func TestGraphsAreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.AddToGraph(ctx, "ex:a ex:b ex:c .", "ex:g1")
	require.NoError(t, err)
	_, err = s.AddToGraph(ctx, "ex:a ex:b ex:c .", "ex:g2")
	require.NoError(t, err)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	graphs, err := s.Graphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ex:g1", "ex:g2"}, graphs)
}

func TestRemoveQuads_BySubjectAndPredicate(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.AddToGraph(ctx, `
		ex:a ex:p 1 ; ex:q 2 .
		ex:b ex:p 3 .
	`, "ex:g")
	require.NoError(t, err)

	p := rdf.NewIRI("http://example.org/p")
	removed, err := s.RemoveQuads(ctx, Match{
		Graph:     "ex:g",
		Subject:   rdf.NewIRI("http://example.org/a"),
		Predicate: &p,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = s.RemoveQuads(ctx, Match{Graph: "ex:g", Predicate: &p})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	n, err := s.GraphLen(ctx, "ex:g")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClearGraph(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.AddToGraph(ctx, "ex:a ex:b ex:c . ex:d ex:e ex:f .", "ex:g")
	require.NoError(t, err)
	_, err = s.AddToGraph(ctx, "ex:a ex:b ex:c .", "ex:other")
	require.NoError(t, err)

	removed, err := s.ClearGraph(ctx, "ex:g")
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplaceGraph(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	_, err := s.AddToGraph(ctx, "ex:a ex:b ex:c .", "ex:g")
	require.NoError(t, err)

	replacement, err := rdf.Parse("ex:x ex:y ex:z . ex:x ex:y ex:w .")
	require.NoError(t, err)
	require.NoError(t, s.ReplaceGraph(ctx, "ex:g", replacement))

	got, err := s.Triples(ctx, "ex:g")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}
