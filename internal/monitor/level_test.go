package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/semledger/internal/integrity"
)

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"minimal", Minimal},
		{"Standard", Standard},
		{"COMPREHENSIVE", Comprehensive},
		{"full", Full},
	} {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseLevel("exhaustive")
	assert.ErrorContains(t, err, "unknown validation level")
}

func TestLevel_YAML(t *testing.T) {
	var cfg struct {
		Level Level `yaml:"level"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("level: comprehensive\n"), &cfg))
	assert.Equal(t, Comprehensive, cfg.Level)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, "level: comprehensive\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("level: bogus\n"), &cfg))
}

func TestLevel_Plan(t *testing.T) {
	minimal := Minimal.Plan()
	assert.Equal(t, "minimal", minimal.Level)
	assert.Equal(t, 10, minimal.SpotCheck)
	assert.False(t, minimal.TransactionCount)
	assert.False(t, minimal.Query)
	assert.False(t, minimal.Canonicalization)

	standard := Standard.Plan()
	assert.True(t, standard.TransactionCount)
	assert.False(t, standard.Query)
	assert.Zero(t, standard.SpotCheck)

	comp := Comprehensive.Plan()
	assert.True(t, comp.TransactionCount)
	assert.True(t, comp.Query)
	assert.True(t, comp.Canonicalization)
	assert.Equal(t, 5, comp.CanonSample)

	full := Full.Plan()
	want := integrity.FullPlan()
	want.Level = "full"
	assert.Equal(t, want, full)
}
