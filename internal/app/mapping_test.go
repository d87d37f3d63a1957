package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rconsched/internal/config"
)

func TestMapSchedulerConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	sc, err := mapSchedulerConfig(cfg)
	require.NoError(t, err)
	assert.True(t, sc.Enabled, "scheduler defaults to enabled")
	assert.Equal(t, 30*time.Second, sc.PollInterval)
	assert.Equal(t, 5*time.Second, sc.DispatchTimeout)

	off := false
	cfg.Scheduler.Enabled = &off
	cfg.Scheduler.PollInterval = "10s"
	sc, err = mapSchedulerConfig(cfg)
	require.NoError(t, err)
	assert.False(t, sc.Enabled)
	assert.Equal(t, 10*time.Second, sc.PollInterval)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	_, enabled, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled, "omitted section disables history")

	cfg := &config.Config{Storage: &config.StorageConfig{Driver: "none"}}
	_, enabled, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.False(t, enabled)

	cfg.Storage = &config.StorageConfig{Driver: "SQLite", Path: "runs.db", BusyTimeout: "2s"}
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, 2*time.Second, sc.BusyTimeout)
}

func TestValidateRejectsBadDurations(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.PollInterval = "soon"
	assert.Error(t, validate(cfg))

	cfg = &config.Config{Notifier: &config.NotifierConfig{DedupWindow: "-5m"}}
	assert.Error(t, validate(cfg))

	assert.NoError(t, validate(&config.Config{}))
}

func TestMapLoggingConfig(t *testing.T) {
	t.Parallel()
	lc := mapLoggingConfig(&config.Config{})
	assert.True(t, lc.Console, "console logging defaults on")

	off := false
	cfg := &config.Config{}
	cfg.Logging.Console = &off
	cfg.Logging.Level = "DEBUG"
	lc = mapLoggingConfig(cfg)
	assert.False(t, lc.Console)
	assert.Equal(t, "DEBUG", lc.Level)
}
