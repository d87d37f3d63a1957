package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the run history backend.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "file": append-only JSON Lines file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// KeepRuns caps retained rows (sqlite prunes oldest first). 0 keeps
	// the default of 10000.
	KeepRuns int
}

// RunEntry records one dispatch attempt.
// Keep it compact and schema-stable.
type RunEntry struct {
	At         time.Time `json:"at"`
	JobID      string    `json:"job_id"`
	JobName    string    `json:"job_name"`
	ServerID   string    `json:"server_id"`
	ServerName string    `json:"server_name,omitempty"`
	Command    string    `json:"command"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	TookMS     int64     `json:"took_ms"`
}
