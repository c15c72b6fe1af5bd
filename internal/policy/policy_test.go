package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/rdf"
)

func parse(t *testing.T, text string) []rdf.Triple {
	t.Helper()
	triples, err := rdf.Parse(text)
	require.NoError(t, err)
	return triples
}

func TestAllow_AcceptsEverything(t *testing.T) {
	assert.NoError(t, Allow{}.Check(context.Background(), parse(t, "ex:a ex:b ex:c .")))
}

func TestCUE_EmptySchemaAcceptsAnyPayload(t *testing.T) {
	p, err := CompileCUE("", "empty.cue")
	require.NoError(t, err)

	err = p.Check(context.Background(), parse(t, `ex:a ex:b "c"@en ; ex:d [ ex:e 1 ] .`))
	assert.NoError(t, err)
}

func TestCUE_PredicateNamespace(t *testing.T) {
	p, err := CompileCUE(`#Triple: predicate: =~"^http://example.org/"`, "ns.cue")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, p.Check(ctx, parse(t, "ex:a ex:b ex:c .")))

	err = p.Check(ctx, parse(t, "ex:a ex:b ex:c .\nex:a rdfs:label \"x\" ."))
	require.ErrorIs(t, err, ErrPolicyViolation)

	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, 1, v.Index)
	assert.Contains(t, v.Triple, "rdf-schema#label")
}

func TestCUE_LiteralConstraints(t *testing.T) {
	p, err := CompileCUE(`
#Triple: {
	if object_kind == "literal" {
		lang: "" | "en"
	}
}
`, "lang.cue")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, p.Check(ctx, parse(t, `ex:a ex:b "hello"@en .`)))
	assert.NoError(t, p.Check(ctx, parse(t, `ex:a ex:b 42 .`)))
	assert.ErrorIs(t, p.Check(ctx, parse(t, `ex:a ex:b "hallo"@de .`)), ErrPolicyViolation)
}

func TestCUE_GraphLimits(t *testing.T) {
	p, err := CompileCUE(`#Graph: { statements: <=2, blank_nodes: 0 }`, "limits.cue")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, p.Check(ctx, parse(t, "ex:a ex:b ex:c . ex:a ex:b ex:d .")))

	err = p.Check(ctx, parse(t, "ex:a ex:b ex:c . ex:a ex:b ex:d . ex:a ex:b ex:e ."))
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, -1, v.Index)

	assert.ErrorIs(t, p.Check(ctx, parse(t, "ex:a ex:b [] .")), ErrPolicyViolation)
}

func TestCUE_ObjectKind(t *testing.T) {
	p, err := CompileCUE(`#Triple: object_kind: "iri"`, "kind.cue")
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, p.Check(ctx, parse(t, "ex:a ex:b ex:c .")))
	assert.ErrorIs(t, p.Check(ctx, parse(t, `ex:a ex:b "c" .`)), ErrPolicyViolation)
}

func TestCompileCUE_SyntaxErrorHasPosition(t *testing.T) {
	_, err := CompileCUE("#Triple: {\n\tpredicate: \n", "broken.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestLoadCUE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte(`#Triple: subject: !~"^_:"`), 0o644))

	p, err := LoadCUE(path)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Check(context.Background(), parse(t, "_:x ex:b ex:c .")), ErrPolicyViolation)

	_, err = LoadCUE(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
