package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rconsched/internal/registry"
	"rconsched/internal/schedule"
	"rconsched/internal/scheduler"
	"rconsched/pkg/logx"
)

func entry(i int) RunEntry {
	return RunEntry{
		At:         time.Date(2026, 3, 2, 12, 0, i, 0, time.UTC),
		JobID:      "job-1",
		JobName:    "backup",
		ServerID:   "srv-1",
		ServerName: "alpha",
		Command:    fmt.Sprintf("save-all %d", i),
		Output:     "Saved the game",
		TookMS:     12,
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "NONE"} {
		h, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, h)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileHistoryRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	h, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, h.AppendRun(ctx, entry(i)))
	}
	got, err := h.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "save-all 2", got[0].Command, "oldest of the retained tail first")
	assert.Equal(t, "save-all 4", got[2].Command)
	require.NoError(t, h.Close())

	// Reopen and keep appending; history survives the restart.
	h2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer h2.Close()
	require.NoError(t, h2.AppendRun(ctx, entry(5)))
	got, err = h2.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestFileHistorySkipsTornLine(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	h, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.AppendRun(ctx, entry(0)))

	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"at":"2026-03-02T12:`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := h.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteHistoryRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	h, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, h.AppendRun(ctx, entry(i)))
	}
	e := entry(5)
	e.Output = ""
	e.Error = "i/o timeout"
	require.NoError(t, h.AppendRun(ctx, e))

	got, err := h.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "save-all 4", got[1].Command)
	last := got[2]
	assert.Equal(t, "i/o timeout", last.Error)
	assert.Empty(t, last.Output)
	assert.True(t, last.At.Equal(time.Date(2026, 3, 2, 12, 0, 5, 0, time.UTC)))
	require.NoError(t, h.Close())

	h2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer h2.Close()
	got, err = h2.RecentRuns(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, got, 6, "rows survive reopen")
}

func TestStateRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "server_config.json")

	st, err := LoadState(path)
	require.NoError(t, err, "missing snapshot is a fresh install")
	assert.Empty(t, st.Servers)
	assert.Empty(t, st.Jobs)

	last := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	st = State{
		Servers: []registry.ServerProfile{
			{ID: "srv-1", Name: "alpha", Host: "alpha.example", Port: 25575, Password: "enc-token"},
		},
		Jobs: []scheduler.Job{
			{
				ID:       "job-1",
				Name:     "backup",
				ServerID: "srv-1",
				Command:  "save-all",
				Rule:     schedule.Rule{Kind: schedule.KindEveryNMinutes, N: 15},
				LastRun:  &last,
			},
		},
	}
	require.NoError(t, SaveState(path, st))

	got, err := LoadState(path)
	require.NoError(t, err)
	require.Len(t, got.Servers, 1)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, st.Servers[0], got.Servers[0])
	assert.Equal(t, "save-all", got.Jobs[0].Command)
	require.NotNil(t, got.Jobs[0].LastRun)
	assert.True(t, got.Jobs[0].LastRun.Equal(last))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "scratch file cleaned up after rename")
}

func TestSaveStateConcurrent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	// Every job mutation snapshots, so overlapping dispatch goroutines can
	// save at the same moment. Each save must land whole; no writer may
	// fail because another one renamed first.
	const writers = 8
	const rounds = 50
	errCh := make(chan error, writers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			st := State{
				Servers: []registry.ServerProfile{
					{ID: fmt.Sprintf("srv-%d", w), Name: "alpha", Host: "alpha.example", Port: 25575, Password: "enc-token"},
				},
			}
			for i := 0; i < rounds; i++ {
				errCh <- SaveState(path, st)
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	got, err := LoadState(path)
	require.NoError(t, err, "last snapshot published intact")
	require.Len(t, got.Servers, 1)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadStateMalformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := LoadState(path)
	assert.Error(t, err, "corrupt snapshots must surface, not vanish")
}
