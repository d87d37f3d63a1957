package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rconsched/internal/registry"
	"rconsched/internal/scheduler"
)

// State is the durable configuration snapshot: which servers exist and which
// jobs run against them, including each job's lastRun marker. Connection
// status is deliberately absent.
type State struct {
	Servers []registry.ServerProfile `json:"servers"`
	Jobs    []scheduler.Job          `json:"jobs"`
}

// LoadState reads the snapshot. A missing file is a fresh install, not an
// error; a malformed file is reported rather than silently discarded.
func LoadState(path string) (State, error) {
	var st State
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read state %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", path, err)
	}
	return st, nil
}

// SaveState writes the snapshot atomically (scratch file + rename) so a
// crash mid-write never leaves a truncated snapshot behind. Each call gets
// its own scratch file, so concurrent saves cannot clobber one another;
// whichever rename lands last wins, and both renames are atomic.
func SaveState(path string, st State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state %s: %w", path, err)
	}
	return nil
}
