package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/ledger"
)

// DefaultMaxConcurrent bounds simultaneous validations.
const DefaultMaxConcurrent = 5

// ValidatorOptions configures an OptimizedValidator.
type ValidatorOptions struct {
	Validator     *integrity.Validator
	Cache         *Cache
	MaxConcurrent int64
	// MaxMemoryBytes refuses validation above this RSS. Zero disables the
	// guard.
	MaxMemoryBytes uint64
	Probe          MemoryProbe
	Stats          *Stats
	Metrics        *Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

// OptimizedValidator is a cached, bounded front for integrity.Validator.
type OptimizedValidator struct {
	validator *integrity.Validator
	cache     *Cache
	sem       *semaphore.Weighted
	maxMemory uint64
	probe     MemoryProbe
	stats     *Stats
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewOptimizedValidator creates an OptimizedValidator. Nil collaborators
// get defaults; a nil Metrics registers nowhere.
func NewOptimizedValidator(opts ValidatorOptions) *OptimizedValidator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Validator == nil {
		opts.Validator = integrity.NewValidator(integrity.Options{Parallel: true, Logger: opts.Logger})
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(0, 0)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Probe == nil {
		opts.Probe = ProcessRSS
	}
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &OptimizedValidator{
		validator: opts.Validator,
		cache:     opts.Cache,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		maxMemory: opts.MaxMemoryBytes,
		probe:     opts.Probe,
		stats:     opts.Stats,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Validate returns a report for l at level, from cache when the chain has
// not changed since the last run at that level.
func (v *OptimizedValidator) Validate(ctx context.Context, l *ledger.Ledger, level Level) (*integrity.Report, error) {
	report, _, err := v.validate(ctx, l, level)
	return report, err
}

func (v *OptimizedValidator) validate(ctx context.Context, l *ledger.Ledger, level Level) (*integrity.Report, bool, error) {
	start := v.now()
	var (
		report *integrity.Report
		cached bool
	)
	err := l.View(func(view *ledger.View) error {
		key := CacheKey{Length: view.Len(), TailHash: view.Tail().Hash, Level: level}
		if r, ok := v.cache.Get(key); ok {
			v.metrics.CacheLookups.WithLabelValues("hit").Inc()
			report, cached = r, true
			return nil
		}
		v.metrics.CacheLookups.WithLabelValues("miss").Inc()

		if rss, err := checkMemory(v.probe, v.maxMemory); err != nil {
			v.metrics.ResourceRefusals.Inc()
			v.logger.Warn("validation refused", "level", level.String(), "rss_bytes", rss, "error", err)
			return err
		}
		if err := v.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
		defer v.sem.Release(1)

		r, err := v.validator.ValidateReader(ctx, view, level.Plan())
		if err != nil {
			return err
		}
		v.cache.Put(key, r)
		report = r
		return nil
	})
	elapsed := v.now().Sub(start)
	if err != nil {
		v.stats.RecordFailure(v.now())
		return nil, false, err
	}
	v.stats.Record(report.OverallStatus, elapsed, v.now(), cached)
	v.metrics.observe(level, report, elapsed.Seconds())
	return report, cached, nil
}

func (v *OptimizedValidator) Stats() StatsSnapshot { return v.stats.Snapshot() }

func (v *OptimizedValidator) CacheStats() CacheStats { return v.cache.Stats() }

// Invalidate drops every cached report, for use after a repair.
func (v *OptimizedValidator) Invalidate() { v.cache.Clear() }
