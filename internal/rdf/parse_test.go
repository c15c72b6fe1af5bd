package rdf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultPrefixes(t *testing.T) {
	triples, err := Parse("ex:a ex:b ex:c .")
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, NewIRI("http://example.org/a"), triples[0].Subject)
	assert.Equal(t, NewIRI("http://example.org/b"), triples[0].Predicate)
	assert.Equal(t, NewIRI("http://example.org/c"), triples[0].Object)
}

func TestParse_PredicateAndObjectLists(t *testing.T) {
	doc := `@prefix s: <http://schema.org/> .
s:alice a s:Person ;
    s:name "Alice"@EN , "Alicia" ;
    s:age 42 ;
    s:score 3.5 ;
    s:ratio 1e3 ;
    s:active true .`
	triples, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, triples, 7)

	assert.Equal(t, NewIRI(RDFType), triples[0].Predicate)
	assert.Equal(t, Literal{Lexical: "Alice", Lang: "en"}, triples[1].Object)
	assert.Equal(t, NewString("Alicia"), triples[2].Object)
	assert.Equal(t, NewTyped("42", XSDInteger), triples[3].Object)
	assert.Equal(t, NewTyped("3.5", XSDDecimal), triples[4].Object)
	assert.Equal(t, NewTyped("1e3", XSDDouble), triples[5].Object)
	assert.Equal(t, NewTyped("true", XSDBoolean), triples[6].Object)
}

func TestParse_AnonymousNodesAvoidUserLabels(t *testing.T) {
	doc := `_:genid1 ex:p [ ex:q "x" ] .`
	triples, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, triples, 2)

	inner := triples[0].Subject.(BlankNode)
	outerObj := triples[1].Object.(BlankNode)
	assert.Equal(t, inner, outerObj)
	assert.NotEqual(t, "genid1", inner.Label)
	assert.Equal(t, NewBlank("genid1"), triples[1].Subject)
}

func TestParse_Collection(t *testing.T) {
	triples, err := Parse(`ex:s ex:list ( ex:a ex:b ) .`)
	require.NoError(t, err)
	// two rdf:first, two rdf:rest, one link from ex:s
	assert.Len(t, triples, 5)

	empty, err := Parse(`ex:s ex:list () .`)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Equal(t, NewIRI(RDFNil), empty[0].Object)
}

func TestParse_LongAndEscapedLiterals(t *testing.T) {
	doc := "ex:s ex:p \"\"\"line one\nline \"two\"\"\"\" .\nex:s ex:q \"tab\\there \\u00e9\" ."
	triples, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, "line one\nline \"two\"", triples[0].Object.(Literal).Lexical)
	assert.Equal(t, "tab\there \u00e9", triples[1].Object.(Literal).Lexical)
}

func TestParse_NormalizesLiteralsToNFC(t *testing.T) {
	triples, err := Parse("ex:s ex:p \"e\u0301\" .")
	require.NoError(t, err)
	assert.Equal(t, "\u00e9", triples[0].Object.(Literal).Lexical)
}

func TestParse_RemovesDuplicates(t *testing.T) {
	triples, err := Parse("ex:a ex:b ex:c .\nex:a ex:b ex:c .")
	require.NoError(t, err)
	assert.Len(t, triples, 1)
}

func TestParse_NTriplesDocument(t *testing.T) {
	doc := `<http://example.org/s> <http://example.org/p> "v"^^<http://www.w3.org/2001/XMLSchema#integer> .
_:b0 <http://example.org/p> <http://example.org/o> .
`
	triples, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, doc, NTriples(triples))
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"undeclared prefix": "nope:a ex:b ex:c .",
		"missing dot":       "ex:a ex:b ex:c",
		"literal subject":   `"x" ex:b ex:c .`,
		"unterminated":      `ex:a ex:b "oops .`,
		"blank predicate":   "ex:a _:p ex:c .",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(doc)
			require.Error(t, err)
			var perr *ParseError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestParseError_Position(t *testing.T) {
	_, err := Parse("ex:a ex:b ex:c .\nex:a ex:b nope:c .")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Line)
}

func TestParseTerm_RoundTrip(t *testing.T) {
	terms := []Term{
		NewIRI("http://example.org/a b"),
		NewBlank("b12"),
		NewString("quote \" and \\ and\nnewline"),
		Literal{Lexical: "hallo", Lang: "de"},
		NewTyped("7", XSDInteger),
	}
	for _, want := range terms {
		got, err := ParseTerm(want.String())
		require.NoError(t, err, want.String())
		assert.Equal(t, want, got)
	}
}

func TestParseTerm_RejectsTrailingInput(t *testing.T) {
	_, err := ParseTerm("<http://a> <http://b>")
	assert.Error(t, err)
}
