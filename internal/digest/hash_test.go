package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDomain_Separation(t *testing.T) {
	data := []byte(`{"index":1}`)
	assert.NotEqual(t, WithDomain(DomainBlock, data), WithDomain(DomainState, data))
	assert.Len(t, WithDomain(DomainBlock, data), 64)
}

func TestSum256Hex_EmptyInput(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum256Hex(nil))
}

func TestRecord_KeyOrderIndependent(t *testing.T) {
	a, err := Record(DomainBlock, map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	b, err := Record(DomainBlock, map[string]any{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
