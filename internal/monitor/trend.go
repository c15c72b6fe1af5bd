package monitor

import (
	"time"

	"github.com/roach88/semledger/internal/integrity"
)

// PerformanceTrend compares recent check durations with earlier ones.
type PerformanceTrend string

const (
	PerformanceImproving PerformanceTrend = "improving"
	PerformanceStable    PerformanceTrend = "stable"
	PerformanceDegrading PerformanceTrend = "degrading"
)

// HealthTrend grades recent check outcomes.
type HealthTrend string

const (
	HealthExcellent    HealthTrend = "excellent"
	HealthGood         HealthTrend = "good"
	HealthConcerning   HealthTrend = "concerning"
	HealthCritical     HealthTrend = "critical"
	HealthInsufficient HealthTrend = "insufficient_data"
)

// Trend tuning.
const (
	minTrendSamples = 3
	trendWindow     = 10
	// performanceDelta is the relative change that counts as a trend.
	performanceDelta = 0.2
)

// HistoryEntry is one completed check in the scheduler's ring.
type HistoryEntry struct {
	At       time.Time        `json:"at"`
	Status   integrity.Status `json:"status"`
	Duration time.Duration    `json:"duration"`
	Cached   bool             `json:"cached,omitempty"`
}

// performanceTrend compares the mean duration of the newer half of the
// window with the older half.
func performanceTrend(history []HistoryEntry) PerformanceTrend {
	window := lastN(history, trendWindow)
	if len(window) < minTrendSamples {
		return PerformanceStable
	}
	mid := len(window) / 2
	older, newer := mean(window[:mid]), mean(window[mid:])
	if older <= 0 {
		return PerformanceStable
	}
	change := (newer - older) / older
	switch {
	case change > performanceDelta:
		return PerformanceDegrading
	case change < -performanceDelta:
		return PerformanceImproving
	default:
		return PerformanceStable
	}
}

// healthTrend grades the window by its healthy share and worst outcome.
func healthTrend(history []HistoryEntry) HealthTrend {
	window := lastN(history, trendWindow)
	if len(window) < minTrendSamples {
		return HealthInsufficient
	}
	healthy, critical := 0, 0
	for _, h := range window {
		switch {
		case h.Status == integrity.Healthy:
			healthy++
		case h.Status >= integrity.Critical:
			critical++
		}
	}
	ratio := float64(healthy) / float64(len(window))
	switch {
	case critical*2 >= len(window):
		return HealthCritical
	case critical > 0 || ratio < 0.7:
		return HealthConcerning
	case ratio >= 0.95:
		return HealthExcellent
	default:
		return HealthGood
	}
}

func lastN(h []HistoryEntry, n int) []HistoryEntry {
	if len(h) > n {
		return h[len(h)-n:]
	}
	return h
}

func mean(h []HistoryEntry) float64 {
	if len(h) == 0 {
		return 0
	}
	var sum time.Duration
	for _, e := range h {
		sum += e.Duration
	}
	return float64(sum) / float64(len(h))
}
