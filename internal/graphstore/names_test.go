package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockGraph_RoundTrip(t *testing.T) {
	for _, i := range []uint64{0, 1, 42, 1 << 40} {
		idx, ok := ParseBlockGraph(BlockGraph(i))
		require.True(t, ok)
		assert.Equal(t, i, idx)
	}
}

func TestParseBlockGraph_Rejects(t *testing.T) {
	for _, name := range []string{
		"ledger://block/",
		"ledger://block/01",
		"ledger://block/-1",
		"ledger://block/1x",
		"ledger://blockchain",
		"ex:block/1",
	} {
		_, ok := ParseBlockGraph(name)
		assert.False(t, ok, name)
	}
}

func TestValidateGraphName(t *testing.T) {
	valid := []string{"ledger://block/0", "ex:g", "http://example.org/g", "urn:uuid:1"}
	for _, name := range valid {
		assert.NoError(t, ValidateGraphName(name), name)
	}

	invalid := []string{"", "no-scheme", ":missing", "ex:has space", "ex:<g>", "ex:a\"b", "ex:a\nb"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateGraphName(name), ErrInvalidGraphName, name)
	}
}
