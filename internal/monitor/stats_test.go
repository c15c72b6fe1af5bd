package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/semledger/internal/integrity"
)

func TestStats_Record(t *testing.T) {
	var st Stats
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	st.Record(integrity.Healthy, 10*time.Millisecond, at, false)
	st.Record(integrity.Critical, 30*time.Millisecond, at.Add(time.Minute), true)
	st.RecordFailure(at.Add(2 * time.Minute))

	s := st.Snapshot()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Healthy)
	assert.Equal(t, 1, s.Critical)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.CacheHits)
	assert.Equal(t, 40*time.Millisecond, s.TotalCheckTime)
	assert.Equal(t, 30*time.Millisecond, s.LastCheckTime)
	assert.Equal(t, at.Add(2*time.Minute), s.LastCheckAt)
	assert.Equal(t, 20*time.Millisecond, s.AverageCheckTime())

	st.Reset()
	assert.Equal(t, StatsSnapshot{}, st.Snapshot())
	assert.Zero(t, st.Snapshot().AverageCheckTime())
}
