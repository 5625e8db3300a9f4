package statestore

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/aleister1102/webwatch/internal/errs"
)

// History logs every completed run into a sqlite database so the
// dashboard can show recent activity. Writes are best-effort; the
// pipeline never fails on a history error.
type History struct {
	db     *sql.DB
	logger zerolog.Logger
}

// HistoryEntry is one row of the run log.
type HistoryEntry struct {
	ID          int64
	WatchID     string
	WatchName   string
	StartedAt   time.Time
	FinishedAt  time.Time
	Success     bool
	ChangeCount int
	Error       string
}

// OpenHistory opens (and if needed creates) the run-history database.
func OpenHistory(path string, logger zerolog.Logger) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrapf(err, "failed to create history directory for '%s'", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrapf(err, "sql.Open failed for '%s'", path)
	}

	h := &History{
		db:     db,
		logger: logger.With().Str("component", "RunHistory").Logger(),
	}
	if err := h.initSchema(); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(err, "failed to initialize history schema")
	}
	return h, nil
}

func (h *History) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS run_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		watch_id TEXT NOT NULL,
		watch_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		success INTEGER NOT NULL,
		change_count INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_history_watch ON run_history(watch_id, started_at);
	`
	_, err := h.db.Exec(query)
	return err
}

// Append records one completed run.
func (h *History) Append(entry HistoryEntry) {
	_, err := h.db.Exec(
		`INSERT INTO run_history (watch_id, watch_name, started_at, finished_at, success, change_count, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.WatchID, entry.WatchName,
		entry.StartedAt.UTC(), entry.FinishedAt.UTC(),
		boolToInt(entry.Success), entry.ChangeCount, entry.Error,
	)
	if err != nil {
		h.logger.Warn().Err(err).Str("watch", entry.WatchID).Msg("Failed to append run history")
	}
}

// Recent returns the latest n runs, newest first.
func (h *History) Recent(n int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(
		`SELECT id, watch_id, watch_name, started_at, finished_at, success, change_count, COALESCE(error, '')
		 FROM run_history ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, errs.Wrap(err, "failed to query run history")
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var success int
		if err := rows.Scan(&e.ID, &e.WatchID, &e.WatchName, &e.StartedAt, &e.FinishedAt, &success, &e.ChangeCount, &e.Error); err != nil {
			return nil, errs.Wrap(err, "failed to scan run history row")
		}
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
