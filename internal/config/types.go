package config

// Defaults applied when the corresponding field is omitted.
const (
	DefaultStatePath = "server_config.json"
	DefaultEnvPath   = ".env"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Registry  RegistryConfig  `json:"registry"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`

	// StatePath is the server/job snapshot file (default "server_config.json").
	StatePath string `json:"state_path,omitempty"`
	// EnvPath is where the master key is read from and, on first start,
	// written to (default ".env").
	EnvPath string `json:"env_path,omitempty"`
}

type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (default INFO).
	Level string `json:"level,omitempty"`
	// Console is a pointer so "omitted" (default true) differs from an
	// explicit false.
	Console *bool          `json:"console,omitempty"`
	File    LogsFileConfig `json:"file,omitempty"`
}

type LogsFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the poll loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// Enabled is a pointer so "omitted" (default true) differs from an
	// explicit false. Toggling it in the config file takes effect on the
	// next poll, no restart needed.
	Enabled *bool `json:"enabled,omitempty"`
	// PollInterval is the tick granularity (default "30s").
	PollInterval string `json:"poll_interval,omitempty"`
	// DispatchTimeout bounds one command round-trip (default "5s").
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

type RegistryConfig struct {
	// DialTimeout bounds connect+auth against one server (default "5s").
	DialTimeout string `json:"dial_timeout,omitempty"`
}

// StorageConfig controls the run history backend. Omitting the section
// disables durable history; the in-memory feed still works.
type StorageConfig struct {
	// Driver is "sqlite", "file", or "none".
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	KeepRuns    int    `json:"keep_runs,omitempty"`
}

// NotifierConfig controls Telegram alerts for failed dispatches.
type NotifierConfig struct {
	Enabled       bool    `json:"enabled"`
	Token         string  `json:"token,omitempty"`
	ChatID        int64   `json:"chat_id,omitempty"`
	NotifySuccess bool    `json:"notify_success,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	DedupWindow   string  `json:"dedup_window,omitempty"`
}
