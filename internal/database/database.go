package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Tool names stored in the runs table
const (
	ToolCleanup  = "cleanup"
	ToolGenerate = "generate"
)

// Run status values
const (
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL" // Some entries left behind
	StatusFailed  = "FAILED"
)

// HistoryDB manages the SQLite database holding the history of tool runs
type HistoryDB struct {
	db *sql.DB
}

// Run represents a single invocation of either tool
type Run struct {
	ID           int64
	Timestamp    time.Time
	Tool         string
	Target       string
	Status       string
	Files        int
	Dirs         int
	Bytes        int64
	Failures     int
	Retries      int
	UsedFallback bool
	Seed         *int64 // Generator only
	Projects     *int   // Generator only
	DurationMs   int64
	ErrorMessage string
	CreatedAt    time.Time
}

// FailureRecord is one entry a cleanup run could not remove
type FailureRecord struct {
	ID           int64
	RunID        int64
	Path         string
	Op           string
	ErrorMessage string
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// file: prefix with _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Executing a query instead of Ping() forces the file to be created
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, err
	}

	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		tool TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,

		files INTEGER NOT NULL DEFAULT 0,
		dirs INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		used_fallback INTEGER NOT NULL DEFAULT 0,

		seed INTEGER,
		projects INTEGER,

		duration_ms INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_tool ON runs(tool);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS run_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		op TEXT NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_id);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordRun inserts a run and returns its id
func (d *HistoryDB) RecordRun(r Run) (int64, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	query := `
	INSERT INTO runs (
		timestamp, tool, target, status,
		files, dirs, bytes, failures, retries, used_fallback,
		seed, projects, duration_ms, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := d.db.Exec(
		query,
		r.Timestamp,
		r.Tool,
		r.Target,
		r.Status,
		r.Files,
		r.Dirs,
		r.Bytes,
		r.Failures,
		r.Retries,
		r.UsedFallback,
		r.Seed,
		r.Projects,
		r.DurationMs,
		r.ErrorMessage,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordFailures inserts the per-entry failures of a run in one transaction
func (d *HistoryDB) RecordFailures(runID int64, failures []FailureRecord) error {
	if len(failures) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO run_failures (run_id, path, op, error_message) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.Exec(runID, f.Path, f.Op, f.ErrorMessage); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run after pruning)
func (d *HistoryDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
