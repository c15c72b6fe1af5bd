package integrity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/ledger"
)

func TestValidate_HealthyChain(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	r := validate(t, l)

	assert.Equal(t, Healthy, r.OverallStatus)
	assert.Empty(t, r.Recommendations)
	assert.Equal(t, 3, r.ChainLength)
	assert.Equal(t, 3, r.Blockchain.PersistedCount)
	assert.Equal(t, []uint64{0, 1, 2}, r.Blockchain.CheckedBlocks)
	assert.Empty(t, r.Blockchain.CorruptedBlocks)
	assert.Empty(t, r.Blockchain.HashMismatches)
	assert.Empty(t, r.Blockchain.HeaderMismatches)

	assert.Equal(t, 1+2+6, r.TransactionCount.ReportedTotal)
	assert.Equal(t, r.TransactionCount.ReportedTotal, r.TransactionCount.ComputedTotal)
	assert.Equal(t, r.TransactionCount.ReportedTotal, r.TransactionCount.StoreTotal)

	require.Len(t, r.Query.Results, 4)
	for _, qr := range r.Query.Results {
		assert.True(t, qr.Consistent, qr.Name)
		assert.NotEmpty(t, qr.Query)
	}

	require.Len(t, r.Canonicalization.Graphs, 2)
	for _, g := range r.Canonicalization.Graphs {
		assert.True(t, g.Agree, g.Graph)
		assert.True(t, g.Deterministic, g.Graph)
		assert.True(t, g.Cached, g.Graph)
	}
	assert.Equal(t, graphstore.BlockGraph(1), r.Canonicalization.Graphs[0].Graph)

	assert.NotEmpty(t, r.Run.ID)
	assert.Equal(t, "full", r.Run.Level)
	assert.Len(t, r.Run.PhaseDurations, 4)
}

func TestValidate_Idempotent(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	first := validate(t, l)
	second := validate(t, l)

	assert.NotEqual(t, first.Run.ID, second.Run.ID)
	assert.True(t, first.Equivalent(second))
}

func TestValidate_ParallelMatchesSequential(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	require.NoError(t, tamperGraph(l, 1))

	par, err := newTestValidator(true).Validate(context.Background(), l)
	require.NoError(t, err)
	seq, err := newTestValidator(false).Validate(context.Background(), l)
	require.NoError(t, err)
	assert.True(t, par.Equivalent(seq))
}

func TestValidate_CancelledContext(t *testing.T) {
	l := createTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestValidator(true).Validate(ctx, l)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestValidatePlan_SkipsPhases(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadAlice+"\nex:carol ex:knows ex:alice .", payloadBlank)
	r, err := newTestValidator(false).ValidatePlan(context.Background(), l, Plan{Level: "minimal", SpotCheck: 2})
	require.NoError(t, err)

	assert.Equal(t, Healthy, r.OverallStatus)
	assert.Equal(t, []uint64{2, 3}, r.Blockchain.CheckedBlocks)
	assert.True(t, r.TransactionCount.Skipped)
	assert.True(t, r.Query.Skipped)
	assert.True(t, r.Canonicalization.Skipped)
	assert.Len(t, r.Run.PhaseDurations, 1)
}

// tamperGraph adds a statement to block i's stored graph behind the
// ledger's back.
func tamperGraph(l *ledger.Ledger, i uint64) error {
	_, err := l.Store().AddToGraph(context.Background(),
		"<http://example.org/mallory> <http://example.org/stole> <http://example.org/funds> .",
		graphstore.BlockGraph(i))
	return err
}

func TestDetectCorruptedBlocks_StoredGraphTamper(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	require.NoError(t, tamperGraph(l, 1))

	var found []uint64
	err := l.View(func(v *ledger.View) error {
		var err error
		found, err = DetectCorruptedBlocks(context.Background(), v)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, found)

	r := validate(t, l)
	assert.Equal(t, Critical, r.Blockchain.Status)
	assert.Equal(t, Critical, r.OverallStatus)
	require.Len(t, r.Blockchain.CorruptedBlocks, 1)
	assert.Contains(t, r.Blockchain.CorruptedBlocks[0].Reasons, "stored graph does not reproduce the block hash")
	assert.Contains(t, r.Blockchain.CorruptedBlocks[0].Reasons, "payload disagrees with stored graph")
	assert.Equal(t, []HashMismatch{{
		Index: 1, Kind: KindBlockHash,
		Expected: r.Blockchain.HashMismatches[0].Expected,
		Actual:   r.Blockchain.HashMismatches[0].Actual,
	}}, r.Blockchain.HashMismatches)

	rec, ok := r.Recommendation(CategoryCorruptedBlock)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, rec.Severity)
	assert.True(t, rec.AutoFixable)
	assert.Equal(t, []uint64{1}, rec.Blocks)

	// The stored graph now holds one more statement than reported.
	require.Len(t, r.TransactionCount.Discrepancies, 1)
	d := r.TransactionCount.Discrepancies[0]
	assert.Equal(t, CountDiscrepancy{Index: 1, Reported: 2, Actual: 2, Stored: 3, Method: MethodParse}, d)
}

func TestValidate_GenesisCorruptionIsCorrupted(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	require.NoError(t, tamperGraph(l, 0))

	r := validate(t, l)
	assert.Equal(t, Corrupted, r.Blockchain.Status)
	assert.Equal(t, Corrupted, r.OverallStatus)
	rec, ok := r.Recommendation(CategoryCorruptedBlock)
	require.True(t, ok)
	assert.Equal(t, SeverityEmergency, rec.Severity)
}

func TestValidate_HalfCorruptedIsCorrupted(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank, payloadAlice+"\nex:x ex:y ex:z .")
	require.NoError(t, tamperGraph(l, 1))
	require.NoError(t, tamperGraph(l, 3))

	r := validate(t, l)
	assert.Equal(t, Corrupted, r.Blockchain.Status)
}

func TestValidate_EmptyStoredGraph(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	_, err := l.Store().ClearGraph(context.Background(), graphstore.BlockGraph(1))
	require.NoError(t, err)

	r := validate(t, l)
	require.Len(t, r.Blockchain.CorruptedBlocks, 1)
	assert.Contains(t, r.Blockchain.CorruptedBlocks[0].Reasons, "stored graph is empty")
	assert.Equal(t, []string{graphstore.BlockGraph(1)}, r.Query.MissingGraphs)
	assert.Equal(t, Critical, r.Query.Status)

	rec, ok := r.Recommendation(CategoryQuery)
	require.True(t, ok)
	assert.False(t, rec.AutoFixable)
	assert.Equal(t, []uint64{1}, rec.Blocks)
}

func TestValidate_MissingHeader(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.RemoveHeader(context.Background(), 2)
	})
	require.NoError(t, err)

	r := validate(t, l)
	assert.Equal(t, []uint64{2}, r.Blockchain.MissingFromStore)
	assert.Equal(t, Critical, r.Blockchain.Status)

	rec, ok := r.Recommendation(CategoryChainLength)
	require.True(t, ok)
	assert.True(t, rec.AutoFixable)
	assert.Equal(t, []uint64{2}, rec.Blocks)

	// The metadata hasIndex count no longer matches the chain.
	assert.Equal(t, Warning, r.Query.Status)
}

func TestValidate_HeaderNotLoaded(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.TruncateChain(2)
	})
	require.NoError(t, err)

	r := validate(t, l)
	assert.Equal(t, []uint64{2}, r.Blockchain.MissingFromChain)
	assert.Empty(t, r.Blockchain.MissingFromStore)
	assert.Equal(t, Critical, r.OverallStatus)
}

func TestValidate_HeaderFieldMismatch(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	s := l.Store()
	_, err := s.DB().Exec(`UPDATE quads SET object = '"forged"' WHERE subject = ? AND predicate = ?`,
		"<"+ledger.HeaderSubject(1)+">", "<"+ledger.PredSignature+">")
	require.NoError(t, err)

	r := validate(t, l)
	require.Len(t, r.Blockchain.HeaderMismatches, 1)
	m := r.Blockchain.HeaderMismatches[0]
	assert.Equal(t, "signature", m.Field)
	assert.Equal(t, "forged", m.Persisted)
	assert.Equal(t, Critical, r.Blockchain.Status)
}

func TestValidate_BrokenLink(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		b, _ := tx.Block(2)
		b.PreviousHash = "deadbeef"
		return tx.ReplaceBlock(context.Background(), b)
	})
	require.NoError(t, err)

	r := validate(t, l)
	var kinds []string
	for _, m := range r.Blockchain.HashMismatches {
		assert.EqualValues(t, 2, m.Index)
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []string{KindPreviousHash, KindBlockHash}, kinds)
	rec, ok := r.Recommendation(CategoryHashChain)
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, rec.Blocks)
}

func TestValidate_StaleBlockHash(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		b, _ := tx.Block(1)
		b.Hash = strings.Repeat("ab", 32)
		return tx.ReplaceBlock(context.Background(), b)
	})
	require.NoError(t, err)

	r := validate(t, l)
	require.Len(t, r.Blockchain.CorruptedBlocks, 1)
	cb := r.Blockchain.CorruptedBlocks[0]
	assert.EqualValues(t, 1, cb.Index)
	assert.True(t, cb.StaleHash)

	rec, ok := r.Recommendation(CategoryHashChain)
	require.True(t, ok)
	assert.Equal(t, []uint64{1, 2}, rec.Blocks)
}

func TestValidate_TamperedGraphIsNotStaleHash(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	ctx := context.Background()
	_, err := l.Store().AddToGraph(ctx, "<http://e/x> <http://e/y> <http://e/z> .", graphstore.BlockGraph(2))
	require.NoError(t, err)

	r := validate(t, l)
	require.Len(t, r.Blockchain.CorruptedBlocks, 1)
	assert.False(t, r.Blockchain.CorruptedBlocks[0].StaleHash)
	_, ok := r.Recommendation(CategoryHashChain)
	assert.False(t, ok)

	// Rebuilding the payload from the edited graph makes both sides agree,
	// but the signature still pins the original content.
	require.NoError(t, l.Update(func(tx *ledger.Tx) error {
		return tx.RebuildPayload(ctx, 2)
	}))
	r = validate(t, l)
	require.Len(t, r.Blockchain.CorruptedBlocks, 1)
	assert.Equal(t, []string{"stored graph does not reproduce the block hash"}, r.Blockchain.CorruptedBlocks[0].Reasons)
	assert.False(t, r.Blockchain.CorruptedBlocks[0].StaleHash)
	_, ok = r.Recommendation(CategoryHashChain)
	assert.False(t, ok)
}

func TestTransactionCount_IgnoresLookalikeGraphs(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	stmt := "<http://e/a> <http://e/b> <http://e/c> ."
	for _, g := range []string{"LEDGER://BLOCK/archive", graphstore.BlockGraphPrefix + "archive"} {
		_, err := l.Store().AddToGraph(context.Background(), stmt, g)
		require.NoError(t, err)
	}

	r := validate(t, l)
	tc := r.TransactionCount
	assert.Equal(t, Healthy, tc.Status)
	assert.Equal(t, tc.ReportedTotal, tc.StoreTotal)
	assert.Zero(t, tc.AggregateDiscrepancy)
	_, ok := r.Recommendation(CategoryTransactionCount)
	assert.False(t, ok)
}

func TestTransactionCount_AggregateDrift(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.RewriteCounts(context.Background(), []int{1, 5, 8}, 14)
	})
	require.NoError(t, err)

	r := validate(t, l)
	tc := r.TransactionCount
	assert.Equal(t, Warning, tc.Status)
	assert.Len(t, tc.Discrepancies, 2)
	assert.Equal(t, PatternOverCounting, tc.Pattern)
	assert.Equal(t, 14, tc.ReportedTotal)
	assert.Equal(t, 14, tc.ComputedTotal)
	assert.Equal(t, 9, tc.StoreTotal)
	assert.Equal(t, 5, tc.AggregateDiscrepancy)

	rec, ok := r.Recommendation(CategoryTransactionCount)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, rec.Severity)
	assert.Equal(t, []uint64{1, 2}, rec.Blocks)
}

func TestTransactionCount_LargeDriftIsCritical(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	err := l.Update(func(tx *ledger.Tx) error {
		return tx.RewriteCounts(context.Background(), []int{1, 2}, 40)
	})
	require.NoError(t, err)

	r := validate(t, l)
	assert.Equal(t, Critical, r.TransactionCount.Status)
	assert.Empty(t, r.TransactionCount.Discrepancies)
	assert.Equal(t, 37, r.TransactionCount.AggregateDiscrepancy)
}

func TestCanonicalization_CacheDrift(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	s := l.Store()
	_, ok := s.CachedCanonical(graphstore.BlockGraph(1))
	require.True(t, ok)

	_, err := s.DB().Exec(`UPDATE quads SET object = '"Alicia"' WHERE graph = ? AND object = '"Alice"'`,
		"<"+graphstore.BlockGraph(1)+">")
	require.NoError(t, err)

	r := validate(t, l)
	assert.Equal(t, []string{graphstore.BlockGraph(1)}, r.Canonicalization.CacheDrift)
	assert.Equal(t, Warning, r.Canonicalization.Status)
	rec, ok := r.Recommendation(CategoryCanonicalization)
	require.True(t, ok)
	assert.True(t, rec.AutoFixable)
}

func TestRunPhase_TrapsPanic(t *testing.T) {
	v := newTestValidator(false)
	var info PhaseInfo
	v.runPhase(context.Background(), "boom", &info, func(context.Context) { panic("kaboom") })
	assert.Equal(t, Critical, info.Status)
	assert.Equal(t, []string{"panic: kaboom"}, info.Errors)
}

func TestRunPhase_FlagsBudget(t *testing.T) {
	v := NewValidator(Options{PhaseBudget: time.Microsecond, Logger: quietLogger})
	var info PhaseInfo
	v.runPhase(context.Background(), "slow", &info, func(context.Context) { time.Sleep(time.Millisecond) })
	assert.True(t, info.BudgetExceeded)
	assert.Equal(t, Warning, info.Status)
}
