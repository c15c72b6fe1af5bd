package canon

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/rdf"
)

func mustParse(t *testing.T, doc string) []rdf.Triple {
	t.Helper()
	triples, err := rdf.Parse(doc)
	require.NoError(t, err)
	return triples
}

func permute(triples []rdf.Triple, seed uint64) []rdf.Triple {
	out := append([]rdf.Triple(nil), triples...)
	r := rand.New(rand.NewPCG(seed, seed+1))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func relabel(triples []rdf.Triple, prefix string) []rdf.Triple {
	names := make(map[string]string)
	// labels assigned in reverse discovery order to make the mapping non-trivial
	labels := rdf.BlankNodes(triples)
	for i, l := range labels {
		names[l] = fmt.Sprintf("%s%d", prefix, len(labels)-i)
	}
	rename := func(t rdf.Term) rdf.Term {
		if b, ok := t.(rdf.BlankNode); ok {
			return rdf.NewBlank(names[b.Label])
		}
		return t
	}
	out := make([]rdf.Triple, len(triples))
	for i, t := range triples {
		out[i] = rdf.Triple{Subject: rename(t.Subject), Predicate: t.Predicate, Object: rename(t.Object)}
	}
	return out
}

var fixtures = map[string]string{
	"ground": `ex:a ex:b ex:c . ex:a ex:name "A" . ex:c ex:value 3 .`,
	"simple blanks": `
		_:x ex:name "alice" .
		_:y ex:name "bob" .
		ex:doc ex:author _:x , _:y .`,
	"interchangeable blanks": `
		_:p ex:tag "same" .
		_:q ex:tag "same" .
		ex:root ex:has _:p , _:q .`,
	"tree": `
		ex:root ex:child _:a .
		_:a ex:child _:b , _:c .
		_:b ex:label "left" .
		_:c ex:label "right" .
		ex:root ex:label "root" .`,
	"cycle": `
		_:n1 ex:next _:n2 . _:n2 ex:next _:n3 . _:n3 ex:next _:n4 .
		_:n4 ex:next _:n5 . _:n5 ex:next _:n6 . _:n6 ex:next _:n1 .`,
	"two triangles": `
		_:a ex:e _:b . _:b ex:e _:c . _:c ex:e _:a .
		_:d ex:e _:f . _:f ex:e _:g . _:g ex:e _:d .`,
	"collection": `ex:s ex:items ( "one" "two" "one" ) .`,
}

func TestHash_PermutationAndRelabelInvariant(t *testing.T) {
	for _, alg := range []Algorithm{Adaptive, Custom, RDFC} {
		for name, doc := range fixtures {
			t.Run(alg.String()+"/"+name, func(t *testing.T) {
				c := New(Options{})
				triples := mustParse(t, doc)
				want, err := c.HashWith(alg, triples)
				require.NoError(t, err)

				for seed := uint64(1); seed <= 5; seed++ {
					got, err := c.HashWith(alg, permute(triples, seed))
					require.NoError(t, err)
					assert.Equal(t, want, got, "permutation seed %d", seed)
				}
				got, err := c.HashWith(alg, relabel(permute(triples, 9), "renamed"))
				require.NoError(t, err)
				assert.Equal(t, want, got, "relabeled")
			})
		}
	}
}

func TestHash_EquivalentGraphsDifferingOnlyInLabels(t *testing.T) {
	a := mustParse(t, `_:x ex:knows _:y . _:y ex:name "Y" . _:x ex:name "X" .`)
	b := mustParse(t, `_:p ex:name "X" . _:q ex:name "Y" . _:p ex:knows _:q .`)
	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHash_DistinguishesDifferentGraphs(t *testing.T) {
	a := mustParse(t, `_:x ex:knows _:y . _:y ex:name "Y" .`)
	b := mustParse(t, `_:x ex:knows _:y . _:x ex:name "Y" .`)
	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	cycle, err := Hash(mustParse(t, fixtures["cycle"]))
	require.NoError(t, err)
	triangles, err := Hash(mustParse(t, fixtures["two triangles"]))
	require.NoError(t, err)
	assert.NotEqual(t, cycle, triangles)
}

func TestAlgorithms_AgreeOnSimpleGraphs(t *testing.T) {
	c := New(Options{})
	for _, name := range []string{"ground", "simple blanks", "interchangeable blanks"} {
		triples := mustParse(t, fixtures[name])
		require.Equal(t, Simple, AnalyzeComplexity(triples).Complexity, name)

		custom, err := c.HashWith(Custom, triples)
		require.NoError(t, err)
		rdfc, err := c.HashWith(RDFC, triples)
		require.NoError(t, err)
		assert.Equal(t, rdfc, custom, name)
	}
}

func TestCanonicalize_GroundGraphIsSortedNTriples(t *testing.T) {
	triples := mustParse(t, fixtures["ground"])
	doc, err := New(Options{}).Canonicalize(RDFC, triples)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(rdf.SortedNTriples(triples), "\n")+"\n", doc)
}

func TestCanonicalize_IssuesSequentialLabels(t *testing.T) {
	doc, err := New(Options{}).Canonicalize(RDFC, mustParse(t, fixtures["tree"]))
	require.NoError(t, err)
	assert.Contains(t, doc, "_:c14n0")
	assert.Contains(t, doc, "_:c14n2")
	assert.NotContains(t, doc, "_:c14n3")
	assert.NotContains(t, doc, "_:a ")
}

func TestRDFC_WorkLimit(t *testing.T) {
	c := New(Options{WorkLimit: 1})
	_, err := c.HashWith(RDFC, mustParse(t, fixtures["cycle"]))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCanonicalizationLimit))
}

func TestAnalyzeComplexity(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Complexity
	}{
		{"no blanks", fixtures["ground"], Simple},
		{"few unlinked blanks", fixtures["simple blanks"], Simple},
		{"blank cycle", fixtures["cycle"], Complex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeComplexity(mustParse(t, tt.doc)).Complexity)
		})
	}
}

func TestAnalyzeComplexity_ModerateTree(t *testing.T) {
	var b strings.Builder
	b.WriteString("ex:root ex:child _:c0 .\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "_:c%d ex:label ex:l%d ; ex:kind ex:k%d .\n", i, i, i)
		if i > 0 {
			fmt.Fprintf(&b, "_:c%d ex:child _:c%d .\n", i-1, i)
		}
	}
	a := AnalyzeComplexity(mustParse(t, b.String()))
	assert.Equal(t, Moderate, a.Complexity)
	assert.Equal(t, 12, a.BlankNodes)
	assert.Equal(t, 11, a.BlankEdges)
}

func TestAnalyzeComplexity_Pathological(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1001; i++ {
		fmt.Fprintf(&b, "_:n%d ex:p _:n%d .\n", i, (i+1)%1001)
	}
	assert.Equal(t, Pathological, AnalyzeComplexity(mustParse(t, b.String())).Complexity)
}

func TestComplexity_Weight(t *testing.T) {
	assert.Equal(t, 1.0, Simple.Weight())
	assert.Equal(t, 1.5, Moderate.Weight())
	assert.Equal(t, 2.5, Complex.Weight())
	assert.Equal(t, 4.0, Pathological.Weight())
}
