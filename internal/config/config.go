// Package config loads semledger's YAML configuration.
//
// Defaults are applied before the file is decoded, so a file only needs
// the keys it changes. Validate runs after decoding.
package config

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/semledger/internal/monitor"
)

// Config is the root of the configuration file.
type Config struct {
	Store      StoreConfig       `yaml:"store"`
	Validators []ValidatorConfig `yaml:"validators"`
	Policy     PolicyConfig      `yaml:"policy"`
	Validation ValidationConfig  `yaml:"validation"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Alerts     AlertsConfig      `yaml:"alerts"`
	Log        LogConfig         `yaml:"log"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// ValidatorConfig authorizes one validator. PublicKey is hex.
type ValidatorConfig struct {
	ID        string `yaml:"id"`
	PublicKey string `yaml:"public_key"`
}

type PolicyConfig struct {
	// File is a CUE schema. Empty accepts every payload.
	File string `yaml:"file"`
}

type ValidationConfig struct {
	PhaseBudget time.Duration `yaml:"phase_budget"`
	Parallel    bool          `yaml:"parallel"`
	Timeout     time.Duration `yaml:"timeout"`
}

type MonitorConfig struct {
	Interval                 time.Duration `yaml:"interval"`
	Level                    monitor.Level `yaml:"level"`
	CacheTTL                 time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries          int           `yaml:"cache_max_entries"`
	AutoRepair               bool          `yaml:"auto_repair"`
	History                  int           `yaml:"history"`
	MaxConcurrentValidations int64         `yaml:"max_concurrent_validations"`
	MaxMemoryMB              uint64        `yaml:"max_memory_mb"`
}

type AlertsConfig struct {
	CriticalThreshold int    `yaml:"critical_threshold"`
	WarningThreshold  int    `yaml:"warning_threshold"`
	WebhookURL        string `yaml:"webhook_url"`
	RatePerMinute     int    `yaml:"rate_per_minute"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File enables rotation through lumberjack. Empty logs to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "semledger.db"},
		Validation: ValidationConfig{
			PhaseBudget: 30 * time.Second,
			Parallel:    true,
			Timeout:     300 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:                 300 * time.Second,
			Level:                    monitor.Standard,
			CacheTTL:                 monitor.DefaultCacheTTL,
			CacheMaxEntries:          monitor.DefaultCacheMaxEntries,
			History:                  monitor.DefaultHistorySize,
			MaxConcurrentValidations: monitor.DefaultMaxConcurrent,
			MaxMemoryMB:              1024,
		},
		Alerts: AlertsConfig{
			CriticalThreshold: 5,
			WarningThreshold:  3,
			RatePerMinute:     6,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxAgeDays: 28,
			MaxBackups: 3,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field constraints. It reports every
// problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Store.Path) == "" {
		fail("store.path is required")
	}

	seen := make(map[string]bool, len(c.Validators))
	for i, v := range c.Validators {
		if v.ID == "" {
			fail("validators[%d].id is required", i)
		} else if seen[v.ID] {
			fail("validators[%d].id %q is duplicated", i, v.ID)
		}
		seen[v.ID] = true
		if _, err := decodePublicKey(v.PublicKey); err != nil {
			fail("validators[%d].public_key: %v", i, err)
		}
	}

	if c.Validation.PhaseBudget <= 0 {
		fail("validation.phase_budget must be positive")
	}
	if c.Validation.Timeout <= 0 {
		fail("validation.timeout must be positive")
	}

	m := c.Monitor
	if m.Interval <= 0 {
		fail("monitor.interval must be positive")
	}
	if m.CacheTTL <= 0 {
		fail("monitor.cache_ttl must be positive")
	}
	if m.CacheMaxEntries <= 0 {
		fail("monitor.cache_max_entries must be positive")
	}
	if m.History <= 0 {
		fail("monitor.history must be positive")
	}
	if m.MaxConcurrentValidations <= 0 {
		fail("monitor.max_concurrent_validations must be positive")
	}

	a := c.Alerts
	if a.CriticalThreshold < 0 || a.WarningThreshold < 0 {
		fail("alerts thresholds must not be negative")
	}
	if a.RatePerMinute <= 0 {
		fail("alerts.rate_per_minute must be positive")
	}
	if a.WebhookURL != "" {
		u, err := url.Parse(a.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fail("alerts.webhook_url %q is not an http(s) URL", a.WebhookURL)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		fail("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format %q must be text or json", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxAgeDays < 0 || c.Log.MaxBackups < 0 {
		fail("log rotation limits must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ValidatorKeys returns the allow-list for ledger.Options. An empty result
// means open mode.
func (c *Config) ValidatorKeys() (map[string]ed25519.PublicKey, error) {
	if len(c.Validators) == 0 {
		return nil, nil
	}
	keys := make(map[string]ed25519.PublicKey, len(c.Validators))
	for _, v := range c.Validators {
		pub, err := decodePublicKey(v.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("validator %q: %w", v.ID, err)
		}
		keys[v.ID] = pub
	}
	return keys, nil
}

// MaxMemoryBytes converts monitor.max_memory_mb. Zero disables the guard.
func (c *Config) MaxMemoryBytes() uint64 {
	return c.Monitor.MaxMemoryMB << 20
}

func decodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
