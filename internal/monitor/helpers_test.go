package monitor

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	payloadAlice = `@prefix ex: <http://example.org/> .
ex:alice ex:knows ex:bob ;
    ex:name "Alice" .`
	payloadBlank = `@prefix ex: <http://example.org/> .
ex:order ex:line [ ex:sku "A1" ; ex:qty 2 ] , [ ex:sku "B2" ; ex:qty 1 ] .`
)

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

	appendPayloads(t, l, payloads...)
	return l
}

func appendPayloads(t *testing.T, l *ledger.Ledger, payloads ...string) {
	t.Helper()
	key := testutil.NewKey("validator-1")
	for _, p := range payloads {
		_, err := l.Append(context.Background(), p, key.ID(), key.Private, nil)
		require.NoError(t, err)
	}
}

func tamperGraph(t *testing.T, l *ledger.Ledger, i uint64) {
	t.Helper()
	_, err := l.Store().AddToGraph(context.Background(),
		"<http://example.org/mallory> <http://example.org/stole> <http://example.org/funds> .",
		graphstore.BlockGraph(i))
	require.NoError(t, err)
}

func newTestOptimizedValidator(opts ValidatorOptions) *OptimizedValidator {
	opts.Logger = quietLogger
	if opts.Validator == nil {
		opts.Validator = integrity.NewValidator(integrity.Options{Logger: quietLogger})
	}
	if opts.Probe == nil {
		opts.Probe = func() (uint64, error) { return 64 << 20, nil }
	}
	return NewOptimizedValidator(opts)
}

// fakeClock advances by step on every call.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// recordingNotifier keeps every alert it is given.
type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *recordingNotifier) kinds() []AlertKind {
	out := make([]AlertKind, 0, len(n.alerts))
	for _, a := range n.alerts {
		out = append(out, a.Kind)
	}
	return out
}
