package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/semledger/internal/broadcast"
	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/repair"
)

// Scheduler defaults.
const (
	DefaultInterval    = 5 * time.Minute
	DefaultHistorySize = 100
	maxRecentAlerts    = 50
)

// ErrSchedulerRunning is returned by Start on a scheduler already running.
var ErrSchedulerRunning = errors.New("monitor: scheduler already running")

// EventType tags an Event.
type EventType string

const (
	EventCheck  EventType = "check"
	EventAlert  EventType = "alert"
	EventRepair EventType = "repair"
)

// ReportSummary is the broadcast form of a validation report.
type ReportSummary struct {
	RunID           string           `json:"run_id"`
	Level           string           `json:"level"`
	Status          integrity.Status `json:"status"`
	ChainLength     int              `json:"chain_length"`
	Recommendations int              `json:"recommendations"`
	AutoFixable     int              `json:"auto_fixable"`
	Duration        time.Duration    `json:"duration"`
	Cached          bool             `json:"cached,omitempty"`
}

// RepairSummary is the broadcast form of a repair result.
type RepairSummary struct {
	Successful    int              `json:"successful"`
	Failed        int              `json:"failed"`
	RolledBack    bool             `json:"rolled_back,omitempty"`
	StillCritical bool             `json:"still_critical"`
	PostStatus    integrity.Status `json:"post_status"`
}

// Event is published on the scheduler's bus.
type Event struct {
	Type    EventType      `json:"type"`
	Time    time.Time      `json:"time"`
	Summary *ReportSummary `json:"summary,omitempty"`
	Alert   *Alert         `json:"alert,omitempty"`
	Repair  *RepairSummary `json:"repair,omitempty"`
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Ledger    *ledger.Ledger
	Validator *OptimizedValidator
	Level     Level
	Interval  time.Duration
	History   int
	// Repair enables automatic repair of auto-fixable findings. Nil
	// disables it.
	Repair   *repair.Engine
	Notifier Notifier
	Bus      *broadcast.Bus[Event]
	// CriticalThreshold and WarningThreshold raise a threshold alert when a
	// report carries at least that many critical or warning
	// recommendations. Zero disables the check.
	CriticalThreshold int
	WarningThreshold  int
	Metrics           *Metrics
	Logger            *slog.Logger
	Now               func() time.Time
}

// CheckResult is the outcome of one scheduled check.
type CheckResult struct {
	Report   *integrity.Report
	Cached   bool
	Duration time.Duration
	Alerts   []Alert
	// Repair is set when an automatic repair ran.
	Repair *repair.Result
}

// Scheduler runs periodic validations and raises alerts on status
// transitions.
//
// CRITICAL: checks are serialized. A RunOnce from the foreground waits for
// a background check in progress, so transitions are computed against the
// previous completed check.
type Scheduler struct {
	opts SchedulerOptions

	checkMu sync.Mutex

	mu           sync.Mutex
	history      []HistoryEntry
	alerts       []Alert
	last         *ReportSummary
	thresholdHit bool
	failing      bool
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler creates a Scheduler. Ledger is required.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Ledger == nil {
		return nil, errors.New("monitor: scheduler requires a ledger")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Validator == nil {
		opts.Validator = NewOptimizedValidator(ValidatorOptions{Logger: opts.Logger})
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.History <= 0 {
		opts.History = DefaultHistorySize
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}
	if opts.Metrics == nil {
		opts.Metrics = opts.Validator.metrics
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts}, nil
}

// Start runs a check immediately and then one per interval until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.opts.Logger.Info("integrity monitoring started",
		"interval", s.opts.Interval,
		"level", s.opts.Level.String(),
		"auto_repair", s.opts.Repair != nil)
	return nil
}

// Stop halts the loop and waits for a check in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.opts.Logger.Info("integrity monitoring stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.opts.Logger.Error("monitoring check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one check: validate, alert on transitions, and repair
// when enabled and the report has auto-fixable findings.
func (s *Scheduler) RunOnce(ctx context.Context) (*CheckResult, error) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	start := s.opts.Now()
	report, cached, err := s.opts.Validator.validate(ctx, s.opts.Ledger, s.opts.Level)
	if err != nil {
		s.mu.Lock()
		first := !s.failing
		s.failing = true
		s.mu.Unlock()
		// Only the first failure of a run of failures alerts.
		if first && ctx.Err() == nil {
			prev := s.lastStatus()
			s.raise(ctx, Alert{
				Kind:     AlertMonitoring,
				Severity: integrity.SeverityCritical,
				Message:  fmt.Sprintf("integrity check failed: %v", err),
				Status:   prev,
				Previous: prev,
			})
		}
		return nil, fmt.Errorf("monitor check: %w", err)
	}
	elapsed := s.opts.Now().Sub(start)

	res := &CheckResult{Report: report, Cached: cached, Duration: elapsed}
	summary := summarize(report, elapsed, cached)
	prev, hadPrev := s.previous()

	s.mu.Lock()
	s.history = appendRing(s.history, HistoryEntry{
		At:       s.opts.Now(),
		Status:   report.OverallStatus,
		Duration: elapsed,
		Cached:   cached,
	}, s.opts.History)
	s.last = summary
	s.failing = false
	s.mu.Unlock()

	s.publish(Event{Type: EventCheck, Time: s.opts.Now(), Summary: summary})
	s.opts.Logger.Debug("monitoring check complete",
		"run_id", report.Run.ID,
		"status", report.OverallStatus.String(),
		"chain_length", report.ChainLength,
		"cached", cached,
		"duration", elapsed)

	res.Alerts = append(res.Alerts, s.transition(ctx, report, prev, hadPrev)...)
	res.Alerts = append(res.Alerts, s.thresholds(ctx, report)...)

	if s.opts.Repair != nil && len(report.AutoFixable()) > 0 {
		result, alerts, err := s.autoRepair(ctx, report)
		if err != nil {
			return res, err
		}
		res.Repair = result
		res.Alerts = append(res.Alerts, alerts...)
	}
	return res, nil
}

func (s *Scheduler) autoRepair(ctx context.Context, report *integrity.Report) (*repair.Result, []Alert, error) {
	result, err := s.opts.Repair.Repair(ctx, s.opts.Ledger, report)
	s.opts.Validator.Invalidate()
	if err != nil {
		s.opts.Metrics.Repairs.WithLabelValues("error").Inc()
		return nil, nil, fmt.Errorf("auto repair: %w", err)
	}

	outcome := "repaired"
	switch {
	case result.RolledBack:
		outcome = "rolled_back"
	case result.StillCritical:
		outcome = "still_critical"
	}
	s.opts.Metrics.Repairs.WithLabelValues(outcome).Inc()

	sum := &RepairSummary{
		Successful:    result.Successful,
		Failed:        result.Failed,
		RolledBack:    result.RolledBack,
		StillCritical: result.StillCritical,
	}
	var alerts []Alert
	if result.Post != nil {
		sum.PostStatus = result.Post.OverallStatus
		s.mu.Lock()
		s.last = summarize(result.Post, result.Post.Run.Duration, false)
		s.mu.Unlock()
		if report.OverallStatus >= integrity.Critical && result.Post.OverallStatus == integrity.Healthy {
			alerts = append(alerts, s.raise(ctx, Alert{
				Kind:     AlertRecovered,
				Severity: integrity.SeverityInfo,
				Message:  fmt.Sprintf("automatic repair restored integrity (%d issues repaired)", result.Successful),
				Status:   integrity.Healthy,
				Previous: report.OverallStatus,
				ReportID: result.Post.Run.ID,
			}))
		}
	}
	s.publish(Event{Type: EventRepair, Time: s.opts.Now(), Repair: sum})
	s.opts.Logger.Info("automatic repair complete",
		"outcome", outcome,
		"successful", result.Successful,
		"failed", result.Failed,
		"manual", len(result.ManualInterventionRequired))
	return result, alerts, nil
}

// transition raises alerts for entering Critical or Corrupted and for
// returning to Healthy from either.
func (s *Scheduler) transition(ctx context.Context, r *integrity.Report, prev integrity.Status, hadPrev bool) []Alert {
	cur := r.OverallStatus
	var a *Alert
	switch {
	case cur == integrity.Corrupted && (!hadPrev || prev != integrity.Corrupted):
		a = &Alert{
			Kind:     AlertCorrupted,
			Severity: integrity.SeverityEmergency,
			Message:  fmt.Sprintf("ledger corrupted: %d corrupted blocks", len(r.Blockchain.CorruptedBlocks)),
		}
	case cur == integrity.Critical && (!hadPrev || prev != integrity.Critical):
		a = &Alert{
			Kind:     AlertCritical,
			Severity: integrity.SeverityCritical,
			Message:  fmt.Sprintf("critical integrity issues: %d recommendations", len(r.Recommendations)),
		}
	case cur == integrity.Healthy && hadPrev && prev >= integrity.Critical:
		a = &Alert{
			Kind:     AlertRecovered,
			Severity: integrity.SeverityInfo,
			Message:  "ledger integrity restored to healthy",
		}
	}
	if a == nil {
		return nil
	}
	a.Status, a.Previous, a.ReportID = cur, prev, r.Run.ID
	return []Alert{s.raise(ctx, *a)}
}

// thresholds raises one alert each time the recommendation counts cross a
// configured threshold. It rearms once the counts fall below.
func (s *Scheduler) thresholds(ctx context.Context, r *integrity.Report) []Alert {
	var critical, warning int
	for _, rec := range r.Recommendations {
		switch {
		case rec.Severity >= integrity.SeverityCritical:
			critical++
		case rec.Severity == integrity.SeverityWarning:
			warning++
		}
	}
	var msg string
	sev := integrity.SeverityWarning
	switch {
	case s.opts.CriticalThreshold > 0 && critical >= s.opts.CriticalThreshold:
		msg = fmt.Sprintf("%d critical recommendations (threshold %d)", critical, s.opts.CriticalThreshold)
		sev = integrity.SeverityCritical
	case s.opts.WarningThreshold > 0 && warning >= s.opts.WarningThreshold:
		msg = fmt.Sprintf("%d warning recommendations (threshold %d)", warning, s.opts.WarningThreshold)
	}

	s.mu.Lock()
	armed := !s.thresholdHit
	s.thresholdHit = msg != ""
	s.mu.Unlock()
	if msg == "" || !armed {
		return nil
	}
	return []Alert{s.raise(ctx, Alert{
		Kind:     AlertThreshold,
		Severity: sev,
		Message:  msg,
		Status:   r.OverallStatus,
		Previous: r.OverallStatus,
		ReportID: r.Run.ID,
	})}
}

// raise stamps, records, publishes and delivers an alert. Delivery errors
// are logged and do not fail the check.
func (s *Scheduler) raise(ctx context.Context, a Alert) Alert {
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.Time = s.opts.Now()

	s.mu.Lock()
	s.alerts = appendRing(s.alerts, a, maxRecentAlerts)
	s.mu.Unlock()

	s.opts.Metrics.Alerts.WithLabelValues(string(a.Kind)).Inc()
	s.publish(Event{Type: EventAlert, Time: a.Time, Alert: &a})
	if err := s.opts.Notifier.Notify(ctx, a); err != nil {
		s.opts.Logger.Warn("alert delivery failed", "alert_id", a.ID, "kind", string(a.Kind), "error", err)
	}
	return a
}

func (s *Scheduler) publish(e Event) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(e)
	}
}

func (s *Scheduler) previous() (integrity.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return integrity.Healthy, false
	}
	return s.last.Status, true
}

func (s *Scheduler) lastStatus() integrity.Status {
	st, _ := s.previous()
	return st
}

// History returns a copy of the check history, oldest first.
func (s *Scheduler) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

// Alerts returns a copy of the recent alerts, oldest first.
func (s *Scheduler) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.alerts...)
}

func summarize(r *integrity.Report, elapsed time.Duration, cached bool) *ReportSummary {
	return &ReportSummary{
		RunID:           r.Run.ID,
		Level:           r.Run.Level,
		Status:          r.OverallStatus,
		ChainLength:     r.ChainLength,
		Recommendations: len(r.Recommendations),
		AutoFixable:     len(r.AutoFixable()),
		Duration:        elapsed,
		Cached:          cached,
	}
}

func appendRing[T any](ring []T, v T, size int) []T {
	ring = append(ring, v)
	if over := len(ring) - size; over > 0 {
		ring = append(ring[:0:0], ring[over:]...)
	}
	return ring
}
