package monitor

import (
	"time"

	"github.com/roach88/semledger/internal/broadcast"
	"github.com/roach88/semledger/internal/integrity"
)

// Dashboard is a point-in-time view of the monitor.
type Dashboard struct {
	GeneratedAt      time.Time        `json:"generated_at"`
	Running          bool             `json:"running"`
	Level            string           `json:"level"`
	Interval         time.Duration    `json:"interval"`
	Status           integrity.Status `json:"status"`
	LastCheck        *ReportSummary   `json:"last_check,omitempty"`
	Stats            StatsSnapshot    `json:"stats"`
	AverageCheckTime time.Duration    `json:"average_check_time"`
	Performance      PerformanceTrend `json:"performance_trend"`
	Health           HealthTrend      `json:"health_trend"`
	RecentAlerts     []Alert          `json:"recent_alerts"`
	Cache            CacheStats       `json:"cache"`
	Bus              *broadcast.Stats `json:"bus,omitempty"`
}

// recentAlertLimit caps the alerts shown on the dashboard.
const recentAlertLimit = 10

// DashboardData collects the current status, stats, trends, recent alerts
// and cache stats.
func (s *Scheduler) DashboardData() Dashboard {
	history := s.History()
	alerts := s.Alerts()
	if len(alerts) > recentAlertLimit {
		alerts = alerts[len(alerts)-recentAlertLimit:]
	}
	stats := s.opts.Validator.Stats()

	d := Dashboard{
		GeneratedAt:      s.opts.Now(),
		Running:          s.Running(),
		Level:            s.opts.Level.String(),
		Interval:         s.opts.Interval,
		Stats:            stats,
		AverageCheckTime: stats.AverageCheckTime(),
		Performance:      performanceTrend(history),
		Health:           healthTrend(history),
		RecentAlerts:     alerts,
		Cache:            s.opts.Validator.CacheStats(),
	}

	s.mu.Lock()
	if s.last != nil {
		last := *s.last
		d.LastCheck = &last
		d.Status = last.Status
	}
	s.mu.Unlock()

	if s.opts.Bus != nil {
		bs := s.opts.Bus.Stats()
		d.Bus = &bs
	}
	return d
}
