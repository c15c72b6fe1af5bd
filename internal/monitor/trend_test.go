package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/semledger/internal/integrity"
)

func entries(durations []time.Duration, statuses ...integrity.Status) []HistoryEntry {
	out := make([]HistoryEntry, len(durations))
	for i, d := range durations {
		out[i] = HistoryEntry{Duration: d}
		if i < len(statuses) {
			out[i].Status = statuses[i]
		}
	}
	return out
}

func ms(vals ...int) []time.Duration {
	out := make([]time.Duration, len(vals))
	for i, v := range vals {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func TestPerformanceTrend(t *testing.T) {
	assert.Equal(t, PerformanceStable, performanceTrend(entries(ms(10, 50))))
	assert.Equal(t, PerformanceStable, performanceTrend(entries(ms(10, 11, 10, 11))))
	assert.Equal(t, PerformanceDegrading, performanceTrend(entries(ms(10, 10, 20, 20))))
	assert.Equal(t, PerformanceImproving, performanceTrend(entries(ms(20, 20, 10, 10))))
	// Only the last ten entries count.
	assert.Equal(t, PerformanceStable,
		performanceTrend(entries(ms(500, 500, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10))))
}

func statuses(s ...integrity.Status) []HistoryEntry {
	out := make([]HistoryEntry, len(s))
	for i, st := range s {
		out[i] = HistoryEntry{Status: st, Duration: time.Millisecond}
	}
	return out
}

func TestHealthTrend(t *testing.T) {
	H, W, C, X := integrity.Healthy, integrity.Warning, integrity.Critical, integrity.Corrupted

	assert.Equal(t, HealthInsufficient, healthTrend(statuses(H, H)))
	assert.Equal(t, HealthExcellent, healthTrend(statuses(H, H, H)))
	assert.Equal(t, HealthGood, healthTrend(statuses(H, H, H, H, H, H, H, H, W, H)))
	assert.Equal(t, HealthConcerning, healthTrend(statuses(H, H, H, C)))
	assert.Equal(t, HealthConcerning, healthTrend(statuses(H, W, W)))
	assert.Equal(t, HealthCritical, healthTrend(statuses(H, C, X)))
}
