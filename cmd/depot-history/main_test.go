package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"depot-tools/internal/database"
	"depot-tools/internal/exitcodes"
)

func seedDB(t *testing.T) (string, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := database.NewHistoryDB(path)
	if err != nil {
		t.Fatalf("NewHistoryDB failed: %v", err)
	}
	defer db.Close()

	seed := int64(42)
	projects := 3
	if _, err := db.RecordRun(database.Run{
		Tool: database.ToolGenerate, Target: "/tmp/depot", Status: database.StatusSuccess,
		Files: 774, Bytes: 250000, Seed: &seed, Projects: &projects, DurationMs: 1200,
	}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	id, err := db.RecordRun(database.Run{
		Tool: database.ToolCleanup, Target: "/tmp/depot", Status: database.StatusPartial,
		Files: 773, Dirs: 120, Bytes: 249000, Failures: 1, Retries: 4, DurationMs: 300,
	})
	if err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := db.RecordFailures(id, []database.FailureRecord{
		{Path: "/tmp/depot/project-01/docs/API.md", Op: "remove", ErrorMessage: "permission denied"},
	}); err != nil {
		t.Fatalf("RecordFailures failed: %v", err)
	}

	if _, err := db.RecordRun(database.Run{
		Timestamp: time.Now().AddDate(0, 0, -100),
		Tool:      database.ToolCleanup, Target: "/tmp/old", Status: database.StatusSuccess,
	}); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	return path, id
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := execute(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRecentRuns(t *testing.T) {
	path, _ := seedDB(t)

	code, out, errOut := runCLI(t, "--db", path, "--recent", "2")
	if code != exitcodes.Success {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}
	if !strings.Contains(out, "PARTIAL") || !strings.Contains(out, "774") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if strings.Contains(out, "/tmp/old") {
		t.Errorf("--recent 2 should not reach the oldest run:\n%s", out)
	}
}

func TestRecentRunsByToolJSON(t *testing.T) {
	path, _ := seedDB(t)

	code, out, errOut := runCLI(t, "--db", path, "--recent", "10", "--tool", "generate", "--json")
	if code != exitcodes.Success {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}

	var runs []database.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Tool != database.ToolGenerate {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Seed == nil || *runs[0].Seed != 42 {
		t.Errorf("seed not returned: %+v", runs[0])
	}
}

func TestTargetPattern(t *testing.T) {
	path, _ := seedDB(t)

	code, out, _ := runCLI(t, "--db", path, "--target", "/tmp/old%")
	if code != exitcodes.Success {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out, "/tmp/old") || strings.Contains(out, "/tmp/depot") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestFailures(t *testing.T) {
	path, id := seedDB(t)

	code, out, _ := runCLI(t, "--db", path, "--failures", strconv.FormatInt(id, 10))
	if code != exitcodes.Success {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out, "project-01/docs/API.md") || !strings.Contains(out, "permission denied") {
		t.Errorf("unexpected failures output:\n%s", out)
	}

	code, out, _ = runCLI(t, "--db", path, "--failures", "9999")
	if code != exitcodes.Success || !strings.Contains(out, "No failures recorded") {
		t.Errorf("unknown run: exit %d output %q", code, out)
	}
}

func TestStats(t *testing.T) {
	path, _ := seedDB(t)

	code, out, _ := runCLI(t, "--db", path, "--stats", "--days", "7")
	if code != exitcodes.Success {
		t.Fatalf("exit %d", code)
	}
	for _, want := range []string{"cleanup:", "generate:", "(0 succeeded, 1 partial, 0 failed)", "Retries:    4"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}

func TestPrune(t *testing.T) {
	path, _ := seedDB(t)

	code, out, _ := runCLI(t, "--db", path, "--prune", "30")
	if code != exitcodes.Success {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out, "Pruned 1 runs older than 30 days") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestUsageErrors(t *testing.T) {
	path, _ := seedDB(t)

	if code, _, _ := runCLI(t, "--db", path); code != exitcodes.Usage {
		t.Errorf("no query: exit %d, expected %d", code, exitcodes.Usage)
	}
	if code, _, _ := runCLI(t, "--recent", "5"); code != exitcodes.Usage {
		t.Errorf("no database: exit %d, expected %d", code, exitcodes.Usage)
	}
	if code, _, _ := runCLI(t, "--db", path, "extra"); code != exitcodes.Usage {
		t.Errorf("positional argument: exit %d, expected %d", code, exitcodes.Usage)
	}
}
