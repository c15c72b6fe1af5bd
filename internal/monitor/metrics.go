package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/semledger/internal/integrity"
)

// Metrics holds the monitor's Prometheus collectors.
type Metrics struct {
	Validations       *prometheus.CounterVec
	ValidationSeconds *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	ResourceRefusals  prometheus.Counter
	Alerts            *prometheus.CounterVec
	Repairs           *prometheus.CounterVec
	ChainLength       prometheus.Gauge
	OverallStatus     prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg yields collectors
// that are not registered anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semledger",
			Subsystem: "integrity",
			Name:      "validations_total",
			Help:      "Validation runs by level and resulting status.",
		}, []string{"level", "status"}),
		ValidationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semledger",
			Subsystem: "integrity",
			Name:      "validation_duration_seconds",
			Help:      "Validation run duration by level.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"level"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semledger",
			Subsystem: "integrity",
			Name:      "cache_lookups_total",
			Help:      "Report cache lookups by result.",
		}, []string{"result"}),
		ResourceRefusals: f.NewCounter(prometheus.CounterOpts{
			Namespace: "semledger",
			Subsystem: "integrity",
			Name:      "resource_refusals_total",
			Help:      "Validations refused by the memory guard.",
		}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semledger",
			Subsystem: "monitor",
			Name:      "alerts_total",
			Help:      "Alerts raised by kind.",
		}, []string{"kind"}),
		Repairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semledger",
			Subsystem: "monitor",
			Name:      "repairs_total",
			Help:      "Automatic repair batches by outcome.",
		}, []string{"outcome"}),
		ChainLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "semledger",
			Subsystem: "ledger",
			Name:      "chain_length",
			Help:      "Blocks in the chain at the last check.",
		}),
		OverallStatus: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "semledger",
			Subsystem: "integrity",
			Name:      "overall_status",
			Help:      "Last overall status: 0 healthy, 1 warning, 2 critical, 3 corrupted.",
		}),
	}
}

func (m *Metrics) observe(level Level, r *integrity.Report, seconds float64) {
	m.Validations.WithLabelValues(level.String(), r.OverallStatus.String()).Inc()
	m.ValidationSeconds.WithLabelValues(level.String()).Observe(seconds)
	m.ChainLength.Set(float64(r.ChainLength))
	m.OverallStatus.Set(float64(r.OverallStatus))
}
