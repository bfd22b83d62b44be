// Package state provides the SQLite ledger for colony: violations, alerts,
// proposals, escalations, envelope history, agents, tasks, and reports.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with colony-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenAndMigrate opens the database and applies pending migrations.
func OpenAndMigrate(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Ledger},
		{2, migrationV2Governance},
		{3, migrationV3Pipeline},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Violations and alerts are append-only and keyed by deterministic event IDs.
const migrationV1Ledger = `
CREATE TABLE IF NOT EXISTS violations (
	event_id TEXT PRIMARY KEY,
	ts DATETIME NOT NULL,
	sender TEXT NOT NULL,
	recipient TEXT NOT NULL,
	channel TEXT NOT NULL,
	reason TEXT NOT NULL,
	excerpt TEXT,
	violation_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_violations_sender ON violations(sender);
CREATE INDEX IF NOT EXISTS idx_violations_ts ON violations(ts);

CREATE TABLE IF NOT EXISTS alerts (
	event_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	severity TEXT NOT NULL,
	agent_id TEXT,
	domain TEXT,
	task_id TEXT,
	payload TEXT NOT NULL,
	ts DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	domain TEXT,
	ordinal INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL,
	violation_count INTEGER NOT NULL DEFAULT 0,
	registered_at DATETIME NOT NULL,
	revoked_at DATETIME
);
`

const migrationV2Governance = `
CREATE TABLE IF NOT EXISTS envelopes (
	domain TEXT NOT NULL,
	version INTEGER NOT NULL,
	payload TEXT NOT NULL,
	published_at DATETIME NOT NULL,
	PRIMARY KEY (domain, version)
);

CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	friction_type TEXT NOT NULL,
	blocked_by_rule TEXT,
	scope TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);

CREATE TABLE IF NOT EXISTS escalations (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	task_id TEXT,
	reason TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_escalations_resolved ON escalations(resolved);
`

const migrationV3Pipeline = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	domain TEXT,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

CREATE TABLE IF NOT EXISTS slices (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	worker_id TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_slices_task_id ON slices(task_id);

CREATE TABLE IF NOT EXISTS reports (
	task_id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	quality_score REAL NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.ExecContext(ctx, query, args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryContext(ctx, query, args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRowContext(ctx, query, args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// PurgeTasks deletes tasks, slices, and reports older than the given age.
// The governance ledger (violations, alerts, proposals, envelopes) is never
// purged. Returns the number of tasks deleted.
func (db *DB) PurgeTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	var count int64
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM slices WHERE task_id IN (SELECT id FROM tasks WHERE created_at < ?)`, cutoff); err != nil {
			return fmt.Errorf("purge slices: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE task_id IN (SELECT id FROM tasks WHERE created_at < ?)`, cutoff); err != nil {
			return fmt.Errorf("purge reports: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("purge tasks: %w", err)
		}
		count, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return count, err
}
