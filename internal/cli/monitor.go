package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/semledger/internal/broadcast"
	"github.com/roach88/semledger/internal/config"
	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/monitor"
	"github.com/roach88/semledger/internal/repair"
)

// MonitorOptions holds flags for the monitor command.
type MonitorOptions struct {
	*RootOptions
	Listen   string
	Once     bool
	Level    string
	Interval time.Duration
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MonitorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run scheduled integrity checks until interrupted",
		Long: `Run the integrity scheduler: a check immediately, then one per interval,
raising alerts on transitions into critical or corrupted, on recovery and
on monitoring failures. With monitor.auto_repair set, auto-fixable findings
are repaired after each check.

With --listen, Prometheus metrics are served on /metrics and the dashboard
on /dashboard. With --once a single check runs and the dashboard is printed.

Exit codes:
  0 - Stopped cleanly (or --once check healthy or warning)
  1 - --once check ended critical or corrupted
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve /metrics and /dashboard on this address")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single check and print the dashboard")
	cmd.Flags().StringVarP(&opts.Level, "level", "l", "", "validation level (default: monitor.level)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "check interval (default: monitor.interval)")

	return cmd
}

func runMonitor(opts *MonitorOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer e.Close()

	level := e.cfg.Monitor.Level
	if opts.Level != "" {
		if level, err = monitor.ParseLevel(opts.Level); err != nil {
			return f.Fail(ExitCommandError, ErrCodeInput, "invalid level", err)
		}
	}
	interval := e.cfg.Monitor.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitor.NewMetrics(reg)

	bus := broadcast.New[monitor.Event](0, e.logger)
	defer bus.Close()
	_, events := bus.Subscribe()
	go logEvents(events, e.logger)

	sopts := monitor.SchedulerOptions{
		Ledger:            e.ledger,
		Validator:         e.optimizedValidator(metrics),
		Level:             level,
		Interval:          interval,
		History:           e.cfg.Monitor.History,
		Notifier:          buildNotifier(e.cfg.Alerts, e.logger),
		Bus:               bus,
		CriticalThreshold: e.cfg.Alerts.CriticalThreshold,
		WarningThreshold:  e.cfg.Alerts.WarningThreshold,
		Metrics:           metrics,
		Logger:            e.logger,
	}
	if e.cfg.Monitor.AutoRepair {
		sopts.Repair = repair.NewEngine(repair.Options{Validator: e.integrityValidator(), Logger: e.logger})
	}
	s, err := monitor.NewScheduler(sopts)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to create scheduler", err)
	}

	if opts.Once {
		vctx, cancel := e.validationContext(ctx)
		defer cancel()
		if _, err := s.RunOnce(vctx); err != nil {
			return f.Fail(ExitCommandError, ErrCodeValidation, "check failed", err)
		}
		return emitDashboard(f, s.DashboardData())
	}

	if opts.Listen != "" {
		srv := &http.Server{
			Addr:              opts.Listen,
			Handler:           monitorMux(reg, s),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("metrics server failed", "addr", opts.Listen, "error", err)
				stop()
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		f.VerboseLog("Serving /metrics and /dashboard on %s", opts.Listen)
	}

	if err := s.Start(ctx); err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to start scheduler", err)
	}
	<-ctx.Done()
	s.Stop()

	return f.Emit(s.DashboardData(), func(w io.Writer) error {
		return renderDashboard(w, s.DashboardData())
	})
}

// monitorMux serves Prometheus metrics from reg and the scheduler's
// dashboard as JSON.
func monitorMux(reg *prometheus.Registry, s *monitor.Scheduler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.DashboardData())
	})
	return mux
}

// buildNotifier logs every alert, posts to the webhook when one is
// configured and throttles the whole chain.
func buildNotifier(cfg config.AlertsConfig, logger *slog.Logger) monitor.Notifier {
	n := monitor.MultiNotifier{monitor.LogNotifier{Logger: logger}}
	if cfg.WebhookURL != "" {
		n = append(n, monitor.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.RatePerMinute > 0 {
		return monitor.NewThrottledNotifier(n, cfg.RatePerMinute)
	}
	return n
}

func logEvents(events <-chan monitor.Event, logger *slog.Logger) {
	for ev := range events {
		attrs := []any{"type", ev.Type}
		if ev.Summary != nil {
			attrs = append(attrs, "status", ev.Summary.Status.String(), "chain_length", ev.Summary.ChainLength)
		}
		if ev.Alert != nil {
			attrs = append(attrs, "alert", ev.Alert.Kind)
		}
		logger.Debug("monitor event", attrs...)
	}
}

func emitDashboard(f *OutputFormatter, d monitor.Dashboard) error {
	text := func(w io.Writer) error { return renderDashboard(w, d) }
	if d.Status < integrity.Critical {
		return f.Emit(d, text)
	}
	msg := fmt.Sprintf("ledger is %s", d.Status)
	if err := f.EmitFailure(ErrCodeIntegrity, msg, d, text); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}

func renderDashboard(w io.Writer, d monitor.Dashboard) error {
	fmt.Fprintf(w, "Status: %s (level %s, every %s)\n", d.Status, d.Level, d.Interval)
	if d.LastCheck != nil {
		fmt.Fprintf(w, "Last check: %d block(s), %d recommendation(s), %s\n",
			d.LastCheck.ChainLength, d.LastCheck.Recommendations, d.LastCheck.Duration.Round(time.Millisecond))
	}
	st := d.Stats
	fmt.Fprintf(w, "Checks: %d total, %d healthy, %d warning, %d critical, %d corrupted, %d failed\n",
		st.Total, st.Healthy, st.Warning, st.Critical, st.Corrupted, st.Failed)
	fmt.Fprintf(w, "Cache: %d hit(s), %d miss(es)\n", d.Cache.Hits, d.Cache.Misses)
	fmt.Fprintf(w, "Trends: performance %s, health %s\n", d.Performance, d.Health)
	if len(d.RecentAlerts) > 0 {
		fmt.Fprintln(w, "Recent alerts:")
		for _, a := range d.RecentAlerts {
			fmt.Fprintf(w, "  [%s] %s: %s\n", a.Severity, a.Kind, a.Message)
		}
	}
	return nil
}
