package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/semledger/internal/integrity"
)

// AlertKind says what triggered an alert.
type AlertKind string

const (
	AlertCritical   AlertKind = "critical"
	AlertCorrupted  AlertKind = "corrupted"
	AlertRecovered  AlertKind = "recovered"
	AlertMonitoring AlertKind = "monitoring_failure"
	AlertThreshold  AlertKind = "threshold"
)

// Alert is a notable status transition or monitoring failure.
type Alert struct {
	ID       string             `json:"id"`
	Kind     AlertKind          `json:"kind"`
	Severity integrity.Severity `json:"severity"`
	Time     time.Time          `json:"time"`
	Message  string             `json:"message"`
	Status   integrity.Status   `json:"status"`
	Previous integrity.Status   `json:"previous"`
	// ReportID links to the validation run, when there was one.
	ReportID string `json:"report_id,omitempty"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	if a.Severity >= integrity.SeverityCritical {
		level = slog.LevelError
	}
	if a.Kind == AlertRecovered {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, "ledger alert",
		"alert_id", a.ID,
		"kind", string(a.Kind),
		"severity", a.Severity.String(),
		"status", a.Status.String(),
		"previous", a.Previous.String(),
		"message", a.Message)
	return nil
}

// WebhookNotifier POSTs alerts as JSON.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier creates a notifier with a bounded client timeout.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("webhook: encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: %s returned %s", n.URL, resp.Status)
	}
	return nil
}

// ThrottledNotifier forwards at most a limited rate of alerts and drops
// the rest.
type ThrottledNotifier struct {
	next    Notifier
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// NewThrottledNotifier allows perMinute alerts per minute with a burst of
// the same size.
func NewThrottledNotifier(next Notifier, perMinute int) *ThrottledNotifier {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &ThrottledNotifier{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

func (n *ThrottledNotifier) Notify(ctx context.Context, a Alert) error {
	if !n.limiter.Allow() {
		n.dropped.Add(1)
		return nil
	}
	return n.next.Notify(ctx, a)
}

// Dropped returns how many alerts were throttled.
func (n *ThrottledNotifier) Dropped() uint64 { return n.dropped.Load() }

// MultiNotifier delivers to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
