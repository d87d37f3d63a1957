package app

import (
	"fmt"
	"strings"
	"time"

	"rconsched/internal/config"
	"rconsched/internal/notify"
	"rconsched/internal/registry"
	"rconsched/internal/rcon"
	"rconsched/internal/scheduler"
	"rconsched/internal/storage"
	"rconsched/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	enabled := true
	if cfg.Scheduler.Enabled != nil {
		enabled = *cfg.Scheduler.Enabled
	}
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.dispatch_timeout", cfg.Scheduler.DispatchTimeout, 5*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	if cfg.Scheduler.HistorySize < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.history_size must be >= 0")
	}
	return scheduler.Config{
		Enabled:         enabled,
		PollInterval:    poll,
		DispatchTimeout: timeout,
		HistorySize:     cfg.Scheduler.HistorySize,
	}, nil
}

func mapRegistryConfig(cfg *config.Config) (registry.Config, error) {
	timeout, err := config.ParseDurationOrDefault("registry.dial_timeout", cfg.Registry.DialTimeout, rcon.DefaultTimeout)
	if err != nil {
		return registry.Config{}, err
	}
	return registry.Config{Timeout: timeout}, nil
}

// mapStorageConfig returns (cfg, enabled, err); an omitted section or the
// "none" driver disables durable history.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	if cfg.Storage.KeepRuns < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.keep_runs must be >= 0")
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		KeepRuns:    cfg.Storage.KeepRuns,
	}, true, nil
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	if cfg.Notifier == nil {
		return notify.Config{}, nil
	}
	window, err := config.ParseDurationField("notifier.dedup_window", cfg.Notifier.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	if cfg.Notifier.RatePerSec < 0 {
		return notify.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	return notify.Config{
		Enabled:       cfg.Notifier.Enabled,
		Token:         cfg.Notifier.Token,
		ChatID:        cfg.Notifier.ChatID,
		NotifySuccess: cfg.Notifier.NotifySuccess,
		RatePerSec:    cfg.Notifier.RatePerSec,
		DedupWindow:   window,
	}, nil
}

// validate rejects a config before a hot reload commits it. It reuses the
// mapping helpers so Watch and startup agree on what "valid" means.
func validate(cfg *config.Config) error {
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRegistryConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	return nil
}
