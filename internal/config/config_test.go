package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/semledger/internal/monitor"
	"github.com/roach88/semledger/internal/testutil"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "semledger.db", cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Validation.PhaseBudget)
	assert.True(t, cfg.Validation.Parallel)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, monitor.Standard, cfg.Monitor.Level)
	assert.Equal(t, 1000, cfg.Monitor.CacheMaxEntries)
	assert.Equal(t, int64(5), cfg.Monitor.MaxConcurrentValidations)
	assert.Equal(t, uint64(1024<<20), cfg.MaxMemoryBytes())
	assert.Equal(t, 5, cfg.Alerts.CriticalThreshold)
	assert.Equal(t, 3, cfg.Alerts.WarningThreshold)
	assert.Equal(t, 6, cfg.Alerts.RatePerMinute)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	key := testutil.NewKey("validator-1")
	cfg, err := Parse([]byte(`
store:
  path: /var/lib/semledger/ledger.db
validators:
  - id: node-1
    public_key: ` + key.ID() + `
validation:
  phase_budget: 5s
monitor:
  interval: 1m
  level: comprehensive
  auto_repair: true
alerts:
  webhook_url: https://hooks.example.org/ledger
log:
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/semledger/ledger.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Validation.PhaseBudget)
	assert.Equal(t, 300*time.Second, cfg.Validation.Timeout, "untouched keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, monitor.Comprehensive, cfg.Monitor.Level)
	assert.True(t, cfg.Monitor.AutoRepair)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)

	keys, err := cfg.ValidatorKeys()
	require.NoError(t, err)
	assert.Equal(t, key.Public, keys["node-1"])
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	keys, err := cfg.ValidatorKeys()
	require.NoError(t, err)
	assert.Nil(t, keys, "no validators means open mode")
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("monitor:\n  intervall: 1m\n"))
	assert.ErrorContains(t, err, "intervall")
}

func TestParse_RejectsBadLevel(t *testing.T) {
	_, err := Parse([]byte("monitor:\n  level: paranoid\n"))
	assert.ErrorContains(t, err, "unknown validation level")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = " "
	cfg.Validators = []ValidatorConfig{
		{ID: "a", PublicKey: "zz"},
		{ID: "a", PublicKey: "abcd"},
	}
	cfg.Monitor.Interval = 0
	cfg.Alerts.RatePerMinute = 0
	cfg.Alerts.WebhookURL = "ftp://example.org"
	cfg.Log.Level = "trace"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"store.path is required",
		"validators[0].public_key: not hex",
		`validators[1].id "a" is duplicated`,
		"validators[1].public_key: 2 bytes, want 32",
		"monitor.interval must be positive",
		"alerts.rate_per_minute must be positive",
		"alerts.webhook_url",
		`log.level "trace"`,
		`log.format "xml"`,
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "bad.yaml")
}
