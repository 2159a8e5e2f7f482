package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "enroll.db", cfg.Store.SQLitePath)
	assert.InDelta(t, 2.0, cfg.Source.RatePerSecond, 0.001)
	assert.Equal(t, 60, cfg.Source.TimeoutSecs)
	assert.Equal(t, 64, cfg.Source.CacheSize)
	assert.Equal(t, "monthly_enrollment", cfg.Pipeline.Name)
	assert.Equal(t, 2006, cfg.Pipeline.EarliestYear)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.InDelta(t, 0.003, cfg.Reconcile.Tolerance, 0.0001)
	assert.InDelta(t, 5.5, cfg.Reconcile.SuppressionMidpoint, 0.001)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enroll
pipeline:
  earliest_year: 2015
  concurrency: 4
reconcile:
  tolerance: 0.01
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/enroll", cfg.Store.DatabaseURL)
	assert.Equal(t, 2015, cfg.Pipeline.EarliestYear)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.InDelta(t, 0.01, cfg.Reconcile.Tolerance, 0.0001)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Defaults still fill the rest.
	assert.Equal(t, "monthly_enrollment", cfg.Pipeline.Name)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
