package monitor

import (
	"sync"
	"time"

	"github.com/roach88/semledger/internal/integrity"
)

// StatsSnapshot is a copy of the accumulated check statistics.
type StatsSnapshot struct {
	Total          int           `json:"total"`
	Healthy        int           `json:"healthy"`
	Warning        int           `json:"warning"`
	Critical       int           `json:"critical"`
	Corrupted      int           `json:"corrupted"`
	Failed         int           `json:"failed"`
	CacheHits      int           `json:"cache_hits"`
	TotalCheckTime time.Duration `json:"total_check_time"`
	LastCheckTime  time.Duration `json:"last_check_time"`
	LastCheckAt    time.Time     `json:"last_check_at"`
}

// AverageCheckTime is the mean duration of completed checks.
func (s StatsSnapshot) AverageCheckTime() time.Duration {
	done := s.Total - s.Failed
	if done <= 0 {
		return 0
	}
	return s.TotalCheckTime / time.Duration(done)
}

// Stats accumulates check outcomes.
type Stats struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// Record adds a completed check.
func (st *Stats) Record(status integrity.Status, elapsed time.Duration, at time.Time, cached bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Total++
	switch status {
	case integrity.Healthy:
		st.s.Healthy++
	case integrity.Warning:
		st.s.Warning++
	case integrity.Critical:
		st.s.Critical++
	case integrity.Corrupted:
		st.s.Corrupted++
	}
	if cached {
		st.s.CacheHits++
	}
	st.s.TotalCheckTime += elapsed
	st.s.LastCheckTime = elapsed
	st.s.LastCheckAt = at
}

// RecordFailure adds a check that did not produce a report.
func (st *Stats) RecordFailure(at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Total++
	st.s.Failed++
	st.s.LastCheckAt = at
}

func (st *Stats) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

func (st *Stats) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = StatsSnapshot{}
}
