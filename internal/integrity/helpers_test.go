package integrity

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// createTestLedger opens a ledger over a temp store with payloads appended
// after genesis.
func createTestLedger(t *testing.T, payloads ...string) *ledger.Ledger {
	t.Helper()
	s, err := graphstore.Open(filepath.Join(t.TempDir(), "ledger.db"), graphstore.Options{Logger: quietLogger})
	require.NoError(t, err)
	l, err := ledger.Open(context.Background(), s, ledger.Options{
		Clock:  testutil.NewDeterministicClock(),
		Logger: quietLogger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	key := testutil.NewKey("validator-1")
	for _, p := range payloads {
		_, err := l.Append(context.Background(), p, key.ID(), key.Private, nil)
		require.NoError(t, err)
	}
	return l
}

func newTestValidator(parallel bool) *Validator {
	return NewValidator(Options{Parallel: parallel, Logger: quietLogger})
}

func validate(t *testing.T, l *ledger.Ledger) *Report {
	t.Helper()
	r, err := newTestValidator(true).Validate(context.Background(), l)
	require.NoError(t, err)
	return r
}

const (
	payloadAlice = `@prefix ex: <http://example.org/> .
ex:alice ex:knows ex:bob ;
    ex:name "Alice" .`
	payloadBlank = `@prefix ex: <http://example.org/> .
ex:order ex:line [ ex:sku "A1" ; ex:qty 2 ] , [ ex:sku "B2" ; ex:qty 1 ] .`
)
