package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/semledger/internal/ledger"
)

// Phase names, as used in RunInfo.PhaseDurations.
const (
	PhaseChain            = "chain"
	PhaseTransactionCount = "transaction_count"
	PhaseQuery            = "query"
	PhaseCanonicalization = "canonicalization"
)

// DefaultPhaseBudget is the soft time budget of each phase.
const DefaultPhaseBudget = 30 * time.Second

// Plan selects the phases of a validation run.
type Plan struct {
	// Level labels the run in its report.
	Level            string
	TransactionCount bool
	Query            bool
	Canonicalization bool
	// SpotCheck limits hash recomputation to the last SpotCheck blocks.
	// Zero checks every block.
	SpotCheck int
	// CanonSample limits the canonicalization phase to the last
	// CanonSample payload graphs. Zero checks every graph.
	CanonSample int
}

// FullPlan runs every phase over every block and graph.
func FullPlan() Plan {
	return Plan{Level: "full", TransactionCount: true, Query: true, Canonicalization: true}
}

// Options configures a Validator.
type Options struct {
	// Parallel runs phases 1-4 concurrently.
	Parallel bool
	// PhaseBudget is the soft budget per phase. Zero means DefaultPhaseBudget.
	PhaseBudget time.Duration
	Logger      *slog.Logger
	// Now overrides the run clock.
	Now func() time.Time
}

// Validator runs validation passes. It holds no per-run state and is safe
// for concurrent use.
type Validator struct {
	opts Options
}

// NewValidator creates a Validator.
func NewValidator(opts Options) *Validator {
	if opts.PhaseBudget <= 0 {
		opts.PhaseBudget = DefaultPhaseBudget
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Validator{opts: opts}
}

// Validate runs every phase over l under its read lock.
func (v *Validator) Validate(ctx context.Context, l *ledger.Ledger) (*Report, error) {
	return v.ValidatePlan(ctx, l, FullPlan())
}

// ValidatePlan runs the phases plan selects over l under its read lock.
func (v *Validator) ValidatePlan(ctx context.Context, l *ledger.Ledger, plan Plan) (*Report, error) {
	var report *Report
	err := l.View(func(view *ledger.View) error {
		var err error
		report, err = v.ValidateReader(ctx, view, plan)
		return err
	})
	return report, err
}

// ValidateReader runs a validation pass over r. The caller holds the lock
// r was obtained under. The only error is ctx's, checked before starting.
func (v *Validator) ValidateReader(ctx context.Context, r ledger.Reader, plan Plan) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := v.opts.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("validate: run id: %w", err)
	}
	report := &Report{
		ChainLength: r.Len(),
		Run: RunInfo{
			ID:             id.String(),
			Level:          plan.Level,
			StartedAt:      started,
			PhaseDurations: make(map[string]time.Duration),
		},
	}

	phases := []struct {
		name string
		run  bool
		info *PhaseInfo
		fn   func(ctx context.Context)
	}{
		{PhaseChain, true, &report.Blockchain.PhaseInfo, func(ctx context.Context) {
			report.Blockchain = checkChain(ctx, r, plan.SpotCheck)
		}},
		{PhaseTransactionCount, plan.TransactionCount, &report.TransactionCount.PhaseInfo, func(ctx context.Context) {
			report.TransactionCount = checkTransactionCounts(ctx, r)
		}},
		{PhaseQuery, plan.Query, &report.Query.PhaseInfo, func(ctx context.Context) {
			report.Query = checkQueries(ctx, r)
		}},
		{PhaseCanonicalization, plan.Canonicalization, &report.Canonicalization.PhaseInfo, func(ctx context.Context) {
			report.Canonicalization = checkCanonicalization(ctx, r, plan.CanonSample)
		}},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, p := range phases {
		if !p.run {
			p.info.Skipped = true
			continue
		}
		run := func() error {
			d := v.runPhase(ctx, p.name, p.info, p.fn)
			mu.Lock()
			report.Run.PhaseDurations[p.name] = d
			mu.Unlock()
			return nil
		}
		if v.opts.Parallel {
			g.Go(run)
		} else {
			_ = run()
		}
	}
	_ = g.Wait()

	report.OverallStatus = Worst(report.Statuses()...)
	report.Recommendations = recommend(report)
	report.Run.FinishedAt = v.opts.Now()
	report.Run.Duration = report.Run.FinishedAt.Sub(started)

	v.opts.Logger.Info("integrity validation complete",
		"run_id", report.Run.ID,
		"level", plan.Level,
		"status", report.OverallStatus.String(),
		"chain_length", report.ChainLength,
		"recommendations", len(report.Recommendations),
		"duration", report.Run.Duration)
	return report, nil
}

// runPhase runs fn, which fills the phase's report field. A panic is
// trapped into info, and a run longer than the budget is flagged there.
// Each phase writes only its own field.
func (v *Validator) runPhase(ctx context.Context, name string, info *PhaseInfo, fn func(context.Context)) time.Duration {
	start := time.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				v.opts.Logger.Error("validation phase panicked",
					"phase", name, "panic", rec, "stack", string(debug.Stack()))
				info.Errors = append(info.Errors, fmt.Sprintf("panic: %v", rec))
				raise(&info.Status, Critical)
			}
		}()
		fn(ctx)
	}()
	elapsed := time.Since(start)
	if elapsed > v.opts.PhaseBudget {
		info.BudgetExceeded = true
		raise(&info.Status, Warning)
		v.opts.Logger.Warn("validation phase exceeded budget",
			"phase", name, "elapsed", elapsed, "budget", v.opts.PhaseBudget)
	}
	if len(info.Errors) > 0 {
		v.opts.Logger.Warn("validation phase recorded errors", "phase", name, "errors", len(info.Errors))
	}
	return elapsed
}
