package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/integrity"
)

func TestOptimizedValidator_CachesUnchangedChain(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	v := newTestOptimizedValidator(ValidatorOptions{})
	ctx := context.Background()

	first, err := v.Validate(ctx, l, Standard)
	require.NoError(t, err)
	assert.Equal(t, integrity.Healthy, first.OverallStatus)
	assert.Equal(t, "standard", first.Run.Level)

	second, cached, err := v.validate(ctx, l, Standard)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Run.ID, second.Run.ID)

	_, cached, err = v.validate(ctx, l, Full)
	require.NoError(t, err)
	assert.False(t, cached, "each level has its own entry")

	appendPayloads(t, l, payloadBlank)
	third, cached, err := v.validate(ctx, l, Standard)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, third.ChainLength)

	st := v.Stats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 4, st.Healthy)
	assert.Equal(t, 1, st.CacheHits)
	cs := v.CacheStats()
	assert.Equal(t, uint64(1), cs.Hits)
	assert.Equal(t, uint64(3), cs.Misses)
}

func TestOptimizedValidator_InvalidateAfterOutOfBandChange(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	v := newTestOptimizedValidator(ValidatorOptions{})
	ctx := context.Background()

	_, err := v.Validate(ctx, l, Full)
	require.NoError(t, err)

	// A stored-graph edit leaves length and tail hash alone.
	tamperGraph(t, l, 1)
	stale, err := v.Validate(ctx, l, Full)
	require.NoError(t, err)
	assert.Equal(t, integrity.Healthy, stale.OverallStatus)

	v.Invalidate()
	fresh, err := v.Validate(ctx, l, Full)
	require.NoError(t, err)
	assert.Equal(t, integrity.Critical, fresh.OverallStatus)
	require.Len(t, fresh.Blockchain.CorruptedBlocks, 1)
	assert.Equal(t, uint64(1), fresh.Blockchain.CorruptedBlocks[0].Index)
}

func TestOptimizedValidator_RefusesOverMemoryLimit(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	v := newTestOptimizedValidator(ValidatorOptions{
		MaxMemoryBytes: 256 << 20,
		Probe:          func() (uint64, error) { return 512 << 20, nil },
		Metrics:        m,
	})

	_, err := v.Validate(context.Background(), l, Minimal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceLimit))
	assert.Equal(t, 1, v.Stats().Failed)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ResourceRefusals))
}

func TestOptimizedValidator_ProbeErrorDoesNotRefuse(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	v := newTestOptimizedValidator(ValidatorOptions{
		MaxMemoryBytes: 1,
		Probe:          func() (uint64, error) { return 0, errors.New("no procfs") },
	})
	r, err := v.Validate(context.Background(), l, Minimal)
	require.NoError(t, err)
	assert.Equal(t, integrity.Healthy, r.OverallStatus)
}

func TestOptimizedValidator_CancelledContext(t *testing.T) {
	l := createTestLedger(t, payloadAlice)
	v := newTestOptimizedValidator(ValidatorOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, l, Standard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, v.Stats().Failed)
}

func TestOptimizedValidator_Metrics(t *testing.T) {
	l := createTestLedger(t, payloadAlice, payloadBlank)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	v := newTestOptimizedValidator(ValidatorOptions{Metrics: m})
	ctx := context.Background()

	for range 2 {
		_, err := v.Validate(ctx, l, Comprehensive)
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, promtest.ToFloat64(m.Validations.WithLabelValues("comprehensive", "healthy")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.ChainLength))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.OverallStatus))

	n, err := promtest.GatherAndCount(reg, "semledger_integrity_validations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
