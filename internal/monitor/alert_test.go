package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/integrity"
)

func testAlert(kind AlertKind) Alert {
	return Alert{
		ID:       "alert-1",
		Kind:     kind,
		Severity: integrity.SeverityCritical,
		Time:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Message:  "critical integrity issues: 2 recommendations",
		Status:   integrity.Critical,
		Previous: integrity.Healthy,
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), testAlert(AlertCritical)))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "kind=critical")
	assert.Contains(t, out, "status=critical")
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	want := testAlert(AlertCorrupted)
	require.NoError(t, NewWebhookNotifier(srv.URL).Notify(context.Background(), want))
	assert.Equal(t, want, got)
}

func TestWebhookNotifier_RejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), testAlert(AlertCritical))
	assert.ErrorContains(t, err, "502")
}

func TestThrottledNotifier_DropsOverRate(t *testing.T) {
	rec := &recordingNotifier{}
	n := NewThrottledNotifier(rec, 2)
	for range 5 {
		require.NoError(t, n.Notify(context.Background(), testAlert(AlertCritical)))
	}
	assert.Len(t, rec.alerts, 2)
	assert.Equal(t, uint64(3), n.Dropped())
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("smtp down")}
	m := MultiNotifier{bad, ok}

	err := m.Notify(context.Background(), testAlert(AlertRecovered))
	assert.ErrorContains(t, err, "smtp down")
	assert.Len(t, ok.alerts, 1, "later notifiers still run")
	assert.Len(t, bad.alerts, 1)
}
