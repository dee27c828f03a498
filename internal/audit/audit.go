// Package audit records every task mutation in an append-only journal:
// a JSONL file for grepping and a sqlite table for queries over the API.
// Writes are best-effort: a journal failure never fails the mutation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one journaled mutation.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Op        string    `json:"op"` // create | update | delete | bulk_create
	TaskID    int64     `json:"task_id"`
	Detail    string    `json:"detail,omitempty"`
}

// Config holds journal settings.
type Config struct {
	HomeDir string // logs/audit.jsonl lives here
	DSN     string // sqlite DSN; empty means ":memory:" (tasks are volatile, so is the default journal)
	Logger  *slog.Logger
}

// Journal is the mutation journal. Safe for concurrent use.
type Journal struct {
	db     *sql.DB
	file   *os.File
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	trace_id   TEXT NOT NULL DEFAULT '',
	op         TEXT NOT NULL,
	task_id    INTEGER NOT NULL,
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
`

// Open creates the journal, its sqlite schema, and the JSONL file.
func Open(cfg Config) (*Journal, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// The in-memory sqlite database is per-connection; cap the pool at one
	// so every statement sees the same database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	var file *os.File
	if cfg.HomeDir != "" {
		logDir := filepath.Join(cfg.HomeDir, "logs")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err = os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open audit.jsonl: %w", err)
		}
	}

	return &Journal{db: db, file: file, logger: logger}, nil
}

// Close releases the journal's file and database handles.
func (j *Journal) Close() error {
	var firstErr error
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			firstErr = err
		}
	}
	if err := j.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Record journals one mutation. Failures are logged, never returned:
// the store treats the journal as fire-and-forget.
func (j *Journal) Record(ctx context.Context, traceID, op string, taskID int64, detail string) {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
		Op:        op,
		TaskID:    taskID,
		Detail:    detail,
	}

	if j.file != nil {
		if b, err := json.Marshal(e); err == nil {
			_, _ = j.file.Write(append(b, '\n'))
		}
	}

	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, created_at, trace_id, op, task_id, detail)
		VALUES (?, ?, ?, ?, ?, ?);
	`, e.ID, e.Timestamp, e.TraceID, e.Op, e.TaskID, e.Detail); err != nil {
		j.logger.Warn("audit: insert failed", "op", op, "task_id", taskID, "error", err)
	}
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, trace_id, op, task_id, detail
		FROM audit_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Op, &e.TaskID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneBefore deletes entries older than cutoff and returns the count.
// Called by the maintenance scheduler.
func (j *Journal) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of journaled entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM audit_log;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit log: %w", err)
	}
	return n, nil
}
