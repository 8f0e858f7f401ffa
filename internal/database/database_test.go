package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T, name string) *HistoryDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), name)

	db, err := NewHistoryDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

// TestDatabaseCreation verifies database file creation and initialization
func TestDatabaseCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")

	db, err := NewHistoryDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created at %s", dbPath)
	}
}

// TestWALModeEnabled verifies that WAL mode is properly configured
func TestWALModeEnabled(t *testing.T) {
	db := openTestDB(t, "wal.db")

	var journalMode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}
}

// TestSchemaCreation verifies all tables and indexes are created
func TestSchemaCreation(t *testing.T) {
	db := openTestDB(t, "schema.db")

	for _, table := range []string{"runs", "run_failures", "schema_version"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}

	var version int
	if err := db.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		t.Errorf("Failed to read schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}

	for _, indexName := range []string{"idx_runs_timestamp", "idx_runs_tool", "idx_runs_status", "idx_run_failures_run"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", indexName).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", indexName, err)
		}
	}
}

// TestRecordRunRoundTrip verifies insertion and retrieval of both run kinds
func TestRecordRunRoundTrip(t *testing.T) {
	db := openTestDB(t, "record.db")

	seed := int64(42)
	projects := 3
	genID, err := db.RecordRun(Run{
		Tool:       ToolGenerate,
		Target:     "/tmp/depot",
		Status:     StatusSuccess,
		Files:      171,
		Bytes:      40960,
		Seed:       &seed,
		Projects:   &projects,
		DurationMs: 120,
	})
	if err != nil {
		t.Fatalf("RecordRun(generate) failed: %v", err)
	}

	cleanID, err := db.RecordRun(Run{
		Timestamp:    time.Now().Add(time.Second),
		Tool:         ToolCleanup,
		Target:       "/tmp/depot",
		Status:       StatusPartial,
		Files:        170,
		Dirs:         12,
		Failures:     1,
		Retries:      2,
		UsedFallback: true,
		ErrorMessage: "1 entries could not be removed",
	})
	if err != nil {
		t.Fatalf("RecordRun(cleanup) failed: %v", err)
	}
	if cleanID <= genID {
		t.Errorf("expected increasing ids, got %d then %d", genID, cleanID)
	}

	runs, err := db.GetRecentRuns(10)
	if err != nil {
		t.Fatalf("GetRecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	latest := runs[0]
	if latest.Tool != ToolCleanup || latest.Status != StatusPartial {
		t.Errorf("unexpected latest run: %+v", latest)
	}
	if !latest.UsedFallback || latest.Retries != 2 || latest.Dirs != 12 {
		t.Errorf("cleanup fields not preserved: %+v", latest)
	}
	if latest.Seed != nil || latest.Projects != nil {
		t.Errorf("cleanup run should have no generator fields: %+v", latest)
	}

	gen := runs[1]
	if gen.Seed == nil || *gen.Seed != 42 {
		t.Errorf("Seed not preserved: %+v", gen.Seed)
	}
	if gen.Projects == nil || *gen.Projects != 3 {
		t.Errorf("Projects not preserved: %+v", gen.Projects)
	}
	if gen.Timestamp.IsZero() {
		t.Error("Timestamp should default to now")
	}
}

func TestRecordFailures(t *testing.T) {
	db := openTestDB(t, "failures.db")

	id, err := db.RecordRun(Run{Tool: ToolCleanup, Target: "/tmp/depot", Status: StatusPartial, Failures: 2})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	if err := db.RecordFailures(id, nil); err != nil {
		t.Errorf("RecordFailures(nil) should be a no-op, got %v", err)
	}

	err = db.RecordFailures(id, []FailureRecord{
		{Path: "/tmp/depot/a", Op: "remove", ErrorMessage: "permission denied"},
		{Path: "/tmp/depot", Op: "rmdir", ErrorMessage: "directory not empty"},
	})
	if err != nil {
		t.Fatalf("RecordFailures failed: %v", err)
	}

	failures, err := db.GetFailures(id)
	if err != nil {
		t.Fatalf("GetFailures failed: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(failures))
	}
	if failures[0].Path != "/tmp/depot/a" || failures[1].Op != "rmdir" {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestQueryMethods(t *testing.T) {
	db := openTestDB(t, "queries.db")

	now := time.Now()
	data := []Run{
		{Timestamp: now.Add(-48 * time.Hour), Tool: ToolGenerate, Target: "/depots/a", Status: StatusSuccess, Files: 100, Bytes: 1000},
		{Timestamp: now.Add(-time.Hour), Tool: ToolCleanup, Target: "/depots/a", Status: StatusSuccess, Files: 100, Dirs: 10, Bytes: 1000},
		{Timestamp: now, Tool: ToolCleanup, Target: "/scratch/b", Status: StatusFailed, UsedFallback: true},
	}
	for _, r := range data {
		if _, err := db.RecordRun(r); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	cleanups, err := db.GetRunsByTool(ToolCleanup, 10)
	if err != nil {
		t.Fatalf("GetRunsByTool failed: %v", err)
	}
	if len(cleanups) != 2 {
		t.Errorf("Expected 2 cleanup runs, got %d", len(cleanups))
	}

	byTarget, err := db.GetRunsByTarget("/depots/%")
	if err != nil {
		t.Fatalf("GetRunsByTarget failed: %v", err)
	}
	if len(byTarget) != 2 {
		t.Errorf("Expected 2 runs under /depots, got %d", len(byTarget))
	}

	stats, err := db.GetRunStats(1)
	if err != nil {
		t.Fatalf("GetRunStats failed: %v", err)
	}
	c := stats.ByTool[ToolCleanup]
	if c == nil {
		t.Fatal("missing cleanup stats")
	}
	if c.Runs != 2 || c.Succeeded != 1 || c.Failed != 1 || c.Fallbacks != 1 || c.Dirs != 10 {
		t.Errorf("unexpected cleanup stats: %+v", c)
	}
	if _, ok := stats.ByTool[ToolGenerate]; ok {
		t.Error("generate run older than the window should be excluded")
	}

	removed, err := db.DeleteOldRuns(1)
	if err != nil {
		t.Fatalf("DeleteOldRuns failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned run, got %d", removed)
	}
}
