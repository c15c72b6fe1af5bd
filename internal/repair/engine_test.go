package repair

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
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

	key := testutil.NewKey("validator-1")
	for _, p := range payloads {
		_, err := l.Append(context.Background(), p, key.ID(), key.Private, nil)
		require.NoError(t, err)
	}
	return l
}

func newTestEngine() *Engine {
	return NewEngine(Options{Logger: quietLogger})
}

func validate(t *testing.T, l *ledger.Ledger) *integrity.Report {
	t.Helper()
	r, err := integrity.NewValidator(integrity.Options{Logger: quietLogger}).Validate(context.Background(), l)
	require.NoError(t, err)
	return r
}

func repair(t *testing.T, l *ledger.Ledger) *Result {
	t.Helper()
	res, err := newTestEngine().Repair(context.Background(), l, validate(t, l))
	require.NoError(t, err)
	return res
}

func tamperGraph(t *testing.T, l *ledger.Ledger, i uint64) {
	t.Helper()
	_, err := l.Store().AddToGraph(context.Background(),
		"<http://example.org/mallory> <http://example.org/stole> <http://example.org/funds> .",
		graphstore.BlockGraph(i))
	require.NoError(t, err)
}

func requireValid(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	ok, err := l.IsChainValid(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRepair_StoredGraphTamper(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	tamperGraph(t, l, 1)

	res := repair(t, l)
	assert.False(t, res.RolledBack)
	assert.Equal(t, 2, res.Successful)
	assert.Zero(t, res.Failed)
	assert.Equal(t, integrity.CategoryCorruptedBlock, res.Repaired[0].Category)
	assert.Equal(t, integrity.CategoryTransactionCount, res.Repaired[1].Category)
	require.NotNil(t, res.Post)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	assert.False(t, res.StillCritical)
	requireValid(t, l)

	n, err := l.Store().GraphLen(context.Background(), graphstore.BlockGraph(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRepair_Converges(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	tamperGraph(t, l, 2)

	first := repair(t, l)
	assert.Equal(t, integrity.Healthy, first.Post.OverallStatus)

	second := repair(t, l)
	assert.Zero(t, second.Successful)
	assert.Zero(t, second.Failed)
	assert.Empty(t, second.ManualInterventionRequired)
	assert.True(t, first.Post.Equivalent(second.Post))
}

func TestRepair_BrokenLinkKeepsSignature(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	before := l.Blocks()[2]
	err := l.Update(func(tx *ledger.Tx) error {
		b, _ := tx.Block(2)
		b.PreviousHash = "deadbeef"
		return tx.ReplaceBlock(context.Background(), b)
	})
	require.NoError(t, err)

	res := repair(t, l)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.ManualInterventionRequired)
	requireValid(t, l)

	after := l.Blocks()[2]
	assert.Equal(t, before.Hash, after.Hash)
	assert.Equal(t, before.PreviousHash, after.PreviousHash)
}

func TestRepair_RelinkRequiresResigning(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	// Re-timestamp block 1: its stored graph still matches its payload but
	// its hash no longer covers the record, and block 2 links to the old hash.
	err := l.Update(func(tx *ledger.Tx) error {
		b, _ := tx.Block(1)
		b.Timestamp = "2030-01-01T00:00:00Z"
		h, err := tx.RecomputeHash(context.Background(), b)
		if err != nil {
			return err
		}
		b.Hash = h
		return tx.ReplaceBlock(context.Background(), b)
	})
	require.NoError(t, err)

	report := validate(t, l)
	rec, ok := report.Recommendation(integrity.CategoryHashChain)
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, rec.Blocks)

	res, err := newTestEngine().Repair(context.Background(), l, report)
	require.NoError(t, err)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	require.Len(t, res.ManualInterventionRequired, 1)
	assert.Contains(t, res.ManualInterventionRequired[0], "block 2")
	requireValid(t, l)
}

func TestRepair_OverwrittenHashIsRestored(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	original := l.Blocks()[1]
	next := l.Blocks()[2]
	overwriteHash(t, l, 1)

	report := validate(t, l)
	rec, ok := report.Recommendation(integrity.CategoryHashChain)
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2}, rec.Blocks)

	res, err := newTestEngine().Repair(context.Background(), l, report)
	require.NoError(t, err)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	assert.Empty(t, res.FailedIssues)
	assert.Empty(t, res.ManualInterventionRequired)
	requireValid(t, l)

	restored := l.Blocks()[1]
	assert.Equal(t, original.Hash, restored.Hash)
	after := l.Blocks()[2]
	assert.Equal(t, next.Hash, after.Hash)
	assert.Equal(t, next.Signature, after.Signature)
}

func TestRepair_OverwrittenTailHash(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	original := l.Blocks()[2]
	overwriteHash(t, l, 2)

	report := validate(t, l)
	rec, ok := report.Recommendation(integrity.CategoryHashChain)
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, rec.Blocks)

	res, err := newTestEngine().Repair(context.Background(), l, report)
	require.NoError(t, err)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	assert.False(t, res.StillCritical)
	assert.Empty(t, res.FailedIssues)
	requireValid(t, l)

	restored := l.Blocks()[2]
	assert.Equal(t, original.Hash, restored.Hash)
}

func overwriteHash(t *testing.T, l *ledger.Ledger, i uint64) {
	t.Helper()
	err := l.Update(func(tx *ledger.Tx) error {
		b, _ := tx.Block(i)
		b.Hash = strings.Repeat("ab", 32)
		return tx.ReplaceBlock(context.Background(), b)
	})
	require.NoError(t, err)
}

func TestRepair_MissingHeader(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.RemoveHeader(context.Background(), 2)
	})
	require.NoError(t, err)

	res := repair(t, l)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	require.Len(t, res.Repaired, 1)
	assert.Equal(t, integrity.CategoryChainLength, res.Repaired[0].Category)
	require.NotNil(t, res.Repaired[0].Block)
	assert.EqualValues(t, 2, *res.Repaired[0].Block)
}

func TestRepair_ReloadsUnloadedBlocks(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.TruncateChain(1)
	})
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())

	res := repair(t, l)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	requireValid(t, l)
}

func TestRepair_TransactionCounts(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.RewriteCounts(context.Background(), []int{1, 7, 7}, 30)
	})
	require.NoError(t, err)

	res := repair(t, l)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	err = l.View(func(v *ledger.View) error {
		assert.Equal(t, []int{1, 2, 6}, v.ReportedCounts())
		assert.Equal(t, 9, v.TotalTransactions())
		return nil
	})
	require.NoError(t, err)
}

func TestRepair_CacheDrift(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	_, err := l.Store().DB().Exec(`UPDATE quads SET object = '"Alicia"' WHERE graph = ? AND object = '"Alice"'`,
		"<"+graphstore.BlockGraph(1)+">")
	require.NoError(t, err)

	res := repair(t, l)
	assert.Equal(t, integrity.Healthy, res.Post.OverallStatus)
	var categories []integrity.Category
	for _, is := range res.Repaired {
		categories = append(categories, is.Category)
	}
	assert.Equal(t, []integrity.Category{integrity.CategoryCorruptedBlock, integrity.CategoryCanonicalization}, categories)
	requireValid(t, l)
}

func TestRepair_UnrepairableBlock(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	err := l.Update(func(tx *ledger.Tx) error {
		b, _ := tx.Block(1)
		b.Payload = "<http://example.org/x> <http://example.org/y> <http://example.org/z> ."
		return tx.ReplaceBlock(context.Background(), b)
	})
	require.NoError(t, err)
	tamperGraph(t, l, 1)

	res := repair(t, l)
	assert.False(t, res.RolledBack)
	require.Equal(t, 1, res.Failed)
	assert.Equal(t, integrity.CategoryCorruptedBlock, res.FailedIssues[0].Category)
	assert.True(t, res.StillCritical)
}

func TestRepair_StorageErrorRollsBack(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	ctx := context.Background()
	_, err := l.Store().ClearGraph(ctx, graphstore.BlockGraph(1))
	require.NoError(t, err)
	before, err := l.Store().Fingerprint(ctx)
	require.NoError(t, err)

	db := l.Store().DB()
	_, err = db.Exec(`CREATE TRIGGER fail_block_1 BEFORE INSERT ON quads
		WHEN NEW.graph = '<ledger://block/1>'
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Exec(`DROP TRIGGER IF EXISTS fail_block_1`) })

	report := validate(t, l)
	res, err := newTestEngine().Repair(ctx, l, report)
	require.NoError(t, err)

	assert.True(t, res.RolledBack)
	assert.Zero(t, res.Successful)
	assert.Equal(t, len(Plan(report).Automatic), res.Failed)
	for _, is := range res.FailedIssues {
		assert.Contains(t, is.Error, "batch rolled back")
	}
	assert.True(t, res.StillCritical)

	after, err := l.Store().Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRepair_NothingAutomatic(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	report := validate(t, l)

	res, err := newTestEngine().Repair(context.Background(), l, report)
	require.NoError(t, err)
	assert.Zero(t, res.Successful)
	assert.False(t, res.StillCritical)
	assert.True(t, report.Equivalent(res.Post))
}
