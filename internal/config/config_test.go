package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "eventdedup.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Matching defaults come through viper identically to DefaultMatching.
	assert.Equal(t, DefaultMatching(), cfg.Matching)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EVENTDEDUP_STORE_DRIVER", "postgres")
	t.Setenv("EVENTDEDUP_MATCHING_THRESHOLDS_HIGH", "0.8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.InDelta(t, 0.8, cfg.Matching.Thresholds.High, 1e-9)
}

func TestDefaultMatching(t *testing.T) {
	m := DefaultMatching()

	assert.InDelta(t, 1.0, m.Scoring.Total(), 1e-9)
	assert.Equal(t, 0.75, m.Thresholds.High)
	assert.Equal(t, 0.35, m.Thresholds.Low)
	// Veto disabled by default.
	assert.Equal(t, 0.0, m.Thresholds.TitleVeto)
	assert.Equal(t, 15, m.Cluster.MaxClusterSize)
	assert.False(t, m.AI.Enabled)
	assert.Equal(t, 0.40, m.AI.MinCombinedScore)
	assert.Equal(t, 0.70, m.AI.MaxCombinedScore)
	require.NoError(t, m.Validate())
}

func TestValidate_Errors(t *testing.T) {
	m := DefaultMatching()
	m.Scoring = ScoringWeights{}
	assert.Error(t, m.Validate())

	m = DefaultMatching()
	m.Thresholds.High = 0.2
	m.Thresholds.Low = 0.5
	assert.Error(t, m.Validate())

	m = DefaultMatching()
	m.Thresholds.High = 1.5
	assert.Error(t, m.Validate())

	m = DefaultMatching()
	m.AI.MinCombinedScore = 0.9
	m.AI.MaxCombinedScore = 0.4
	assert.Error(t, m.Validate())
}

func TestValidate_UnbalancedWeightsStillValid(t *testing.T) {
	m := DefaultMatching()
	m.Scoring = ScoringWeights{Date: 2, Geo: 1, Title: 2, Description: 1}
	// Not summing to 1 only warns; combine normalizes by the total.
	assert.NoError(t, m.Validate())
}
