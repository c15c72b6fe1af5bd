package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/semledger/internal/config"
	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/logging"
	"github.com/roach88/semledger/internal/monitor"
	"github.com/roach88/semledger/internal/policy"
)

// env is what a ledger command runs against: the loaded config, the
// logger and the open ledger.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	ledger  *ledger.Ledger
	closers []io.Closer
}

// loadConfig reads --config and applies --store.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.StorePath != "" {
		cfg.Store.Path = opts.StorePath
	}
	return cfg, nil
}

// openEnv loads config, builds the logger and opens the ledger. Failures
// are reported through f.
func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command, f *OutputFormatter) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	logger, logCloser, err := logging.New(cfg.Log, cmd.ErrOrStderr(), opts.Verbose)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to configure logging", err)
	}
	e := &env{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	lopts := ledger.Options{Logger: logger}
	if lopts.Validators, err = cfg.ValidatorKeys(); err != nil {
		e.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid validator keys", err)
	}
	if cfg.Policy.File != "" {
		p, err := policy.LoadCUE(cfg.Policy.File)
		if err != nil {
			e.Close()
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load policy", err)
		}
		lopts.Policy = p
	}

	st, err := graphstore.Open(cfg.Store.Path, graphstore.Options{Logger: logger})
	if err != nil {
		e.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	l, err := ledger.Open(ctx, st, lopts)
	if err != nil {
		st.Close()
		e.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open ledger", err)
	}
	e.ledger = l
	// The ledger closes first so its final writes are logged.
	e.closers = append([]io.Closer{l}, e.closers...)
	f.VerboseLog("Opened %s (%d block(s))", cfg.Store.Path, l.Len())
	return e, nil
}

// Close releases the ledger and the log sink.
func (e *env) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (e *env) integrityValidator() *integrity.Validator {
	return integrity.NewValidator(integrity.Options{
		Parallel:    e.cfg.Validation.Parallel,
		PhaseBudget: e.cfg.Validation.PhaseBudget,
		Logger:      e.logger,
	})
}

// optimizedValidator builds the cached, bounded validator from the monitor
// config. A nil metrics records to unregistered collectors.
func (e *env) optimizedValidator(metrics *monitor.Metrics) *monitor.OptimizedValidator {
	m := e.cfg.Monitor
	return monitor.NewOptimizedValidator(monitor.ValidatorOptions{
		Validator:      e.integrityValidator(),
		Cache:          monitor.NewCache(m.CacheTTL, m.CacheMaxEntries),
		MaxConcurrent:  m.MaxConcurrentValidations,
		MaxMemoryBytes: e.cfg.MaxMemoryBytes(),
		Metrics:        metrics,
		Logger:         e.logger,
	})
}

// validationContext bounds a validation run by validation.timeout.
func (e *env) validationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Validation.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.Validation.Timeout)
}
