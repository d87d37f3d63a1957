package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"rconsched/internal/registry"
	"rconsched/internal/schedule"
)

// Job is one recurring command against one server. Jobs reference servers
// by ID only; they never hold the connection.
type Job struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	ServerID string        `json:"server_id"`
	Command  string        `json:"command"`
	Rule     schedule.Rule `json:"rule"`
	LastRun  *time.Time    `json:"last_run,omitempty"`
	Disabled bool          `json:"disabled,omitempty"`
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.Command) == "" {
		return errors.New("scheduler: command is required")
	}
	if strings.TrimSpace(j.ServerID) == "" {
		return errors.New("scheduler: server reference is required")
	}
	return j.Rule.Validate()
}

// RunRecord is the outcome of one dispatch attempt.
type RunRecord struct {
	JobID      string
	JobName    string
	ServerID   string
	ServerName string
	Command    string
	Started    time.Time
	Duration   time.Duration
	Output     string
	Err        string
	Skipped    bool
	SkipReason string
}

// Upcoming pairs a job with its next occurrence.
type Upcoming struct {
	Job  Job
	Next time.Time
}

// Dispatcher is the slice of the registry the loop needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, serverID, command string) (string, error)
	Lookup(serverID string) (registry.ServerProfile, bool)
}

// Sink receives every run record for durable history. Errors are logged,
// never propagated into the loop.
type Sink interface {
	AppendRun(ctx context.Context, rec RunRecord) error
}

// Config controls the poll loop.
type Config struct {
	Enabled bool
	// PollInterval is the tick granularity (default 30s, floor 1s). Rules
	// finer than this are served best-effort.
	PollInterval time.Duration
	// DispatchTimeout bounds a single job dispatch (default 5s).
	DispatchTimeout time.Duration
	// HistorySize caps the in-memory run feed (default 200).
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollInterval < time.Second {
		c.PollInterval = time.Second
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 5 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}
