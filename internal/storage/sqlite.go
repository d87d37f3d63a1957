package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"rconsched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteHistory struct {
	db  *sql.DB
	log logx.Logger

	keep       int
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (History, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	keep := cfg.KeepRuns
	if keep <= 0 {
		keep = 10000
	}
	h := &sqliteHistory{db: db, log: log, keep: keep, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := h.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *sqliteHistory) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = h.db.ExecContext(ctx, string(b))
	return err
}

func (h *sqliteHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *sqliteHistory) AppendRun(ctx context.Context, e RunEntry) error {
	if h == nil || h.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO runs(at, job_id, job_name, server_id, server_name, command, output, err, skipped, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.JobID, e.JobName, e.ServerID, nullStr(e.ServerName),
		e.Command, nullStr(e.Output), nullStr(e.Error), boolInt(e.Skipped), e.TookMS,
	)
	if err == nil && h.opCount.Add(1)%h.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		if perr := h.prune(pctx); perr != nil {
			h.log.Debug("run prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (h *sqliteHistory) RecentRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if h == nil || h.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT at, job_id, job_name, server_id, server_name, command, output, err, skipped, took_ms
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var at string
		var serverName, output, errStr sql.NullString
		var skipped int
		if err := rows.Scan(&at, &e.JobID, &e.JobName, &e.ServerID, &serverName, &e.Command, &output, &errStr, &skipped, &e.TookMS); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			e.At = t
		}
		e.ServerName = serverName.String
		e.Output = output.String
		e.Error = errStr.String
		e.Skipped = skipped != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first reads naturally in logs and UIs.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (h *sqliteHistory) prune(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id <= (SELECT COALESCE(MAX(id),0) FROM runs) - ?`, h.keep)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
