package cleanup

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"depot-tools/internal/database"
	"depot-tools/internal/fsops"
	"depot-tools/internal/metrics"
)

func init() {
	// Initialize metrics once for all tests
	metrics.Init()
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// buildTree creates root/{a/x.cpp,a/y.h,a/deep/z.md,b.json} and returns root
func buildTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "depot")
	files := []string{"a/x.cpp", "a/y.h", "a/deep/z.md", "b.json"}
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
		if err := os.WriteFile(p, []byte("content"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	return root
}

func assertGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist, Lstat err = %v", path, err)
	}
}

func TestForceDeleteRemovesTree(t *testing.T) {
	root := buildTree(t)

	var progressed, finals int
	c := NewCleaner(quietLogger(), nil)
	c.SetProgress(func(n int, done bool) {
		progressed = n
		if done {
			finals++
		}
	})

	res := c.ForceDelete(root)

	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	assertGone(t, root)
	if res.FilesRemoved != 4 {
		t.Errorf("FilesRemoved = %d, expected 4", res.FilesRemoved)
	}
	// a, a/deep, root
	if res.DirsRemoved != 3 {
		t.Errorf("DirsRemoved = %d, expected 3", res.DirsRemoved)
	}
	if res.BytesFreed != int64(4*len("content")) {
		t.Errorf("BytesFreed = %d", res.BytesFreed)
	}
	if progressed != 7 {
		t.Errorf("progress reported %d, expected 7", progressed)
	}
	if finals != 1 {
		t.Errorf("final progress call made %d times, expected 1", finals)
	}
	if res.UsedFallback || len(res.Failures) != 0 {
		t.Errorf("unexpected fallback/failures: %+v", res)
	}
	if res.Status() != database.StatusSuccess {
		t.Errorf("Status() = %s", res.Status())
	}
}

// TestForceDeleteReadOnlyEntries marks part of the tree read-only and
// unlistable and checks the whole tree still goes away.
func TestForceDeleteReadOnlyEntries(t *testing.T) {
	root := buildTree(t)

	for _, p := range []string{"a/x.cpp", "b.json"} {
		if err := os.Chmod(filepath.Join(root, p), 0o444); err != nil {
			t.Fatalf("Chmod failed: %v", err)
		}
	}
	if err := os.Chmod(filepath.Join(root, "a", "deep"), 0o000); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.Chmod(filepath.Join(root, "a"), 0o555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	res := NewCleaner(quietLogger(), nil).ForceDelete(root)

	if !res.OK() {
		t.Fatalf("expected success, got failures %v err %v", res.Failures, res.Err)
	}
	assertGone(t, root)
}

func TestForceDeleteRetriesOnce(t *testing.T) {
	root := buildTree(t)
	target := filepath.Join(root, "a", "x.cpp")

	fd := &fsops.FaultyDeleter{RemoveFailures: map[string]int{target: 1}}
	c := NewCleaner(quietLogger(), nil)
	c.SetDeleter(fd)

	res := c.ForceDelete(root)

	if !res.OK() {
		t.Fatalf("expected success after retry, got %+v", res)
	}
	if res.Retries != 1 {
		t.Errorf("Retries = %d, expected 1", res.Retries)
	}
	if fd.Removes[target] != 2 {
		t.Errorf("Remove called %d times on %s, expected 2", fd.Removes[target], target)
	}
	if len(fd.Chmods) == 0 {
		t.Error("expected write protection to be cleared before the retry")
	}
}

// TestForceDeletePartialFailure checks best-effort semantics: a stuck entry
// is retried once, logged, and the rest of the tree is still processed.
func TestForceDeletePartialFailure(t *testing.T) {
	root := buildTree(t)
	stuck := filepath.Join(root, "a", "x.cpp")

	fd := &fsops.FaultyDeleter{RemoveFailures: map[string]int{stuck: -1}}
	c := NewCleaner(quietLogger(), nil)
	c.SetDeleter(fd)

	res := c.ForceDelete(root)

	if res.OK() {
		t.Fatal("expected failure with a stuck entry")
	}
	if res.Err != nil {
		t.Errorf("partial failure must not be fatal, got %v", res.Err)
	}
	if res.UsedFallback {
		t.Error("per-entry failures must not trigger the fallback")
	}
	if res.Status() != database.StatusPartial {
		t.Errorf("Status() = %s, expected %s", res.Status(), database.StatusPartial)
	}

	for path, n := range fd.Removes {
		if n > 2 {
			t.Errorf("%s attempted %d times, expected at most 2", path, n)
		}
	}

	// stuck file, its directory, and the root
	if len(res.Failures) != 3 {
		t.Fatalf("Failures = %v, expected 3", res.Failures)
	}
	if res.Failures[0].Path != stuck || res.Failures[0].Op != OpRemove {
		t.Errorf("first failure = %v", res.Failures[0])
	}

	assertGone(t, filepath.Join(root, "b.json"))
	assertGone(t, filepath.Join(root, "a", "deep"))
	if _, err := os.Stat(stuck); err != nil {
		t.Errorf("stuck file should remain: %v", err)
	}
	// Only the three files that went away count
	if res.BytesFreed != int64(3*len("content")) {
		t.Errorf("BytesFreed = %d, expected %d", res.BytesFreed, 3*len("content"))
	}
}

// TestForceDeleteLeavesParentProtection fails the root's first removal so
// the retry path runs on it, and checks the directory holding the target
// keeps its read-only mode.
func TestForceDeleteLeavesParentProtection(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "shared")
	root := filepath.Join(parent, "depot")
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.cpp"), []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Chmod(parent, 0o555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(parent, 0o755) })

	fd := &fsops.FaultyDeleter{
		RemoveFailures:  map[string]int{root: 1},
		ReadDirFailures: map[string]int{filepath.Join(root, "src"): 1},
	}
	c := NewCleaner(quietLogger(), nil)
	c.SetDeleter(fd)

	res := c.ForceDelete(root)

	for _, p := range fd.Chmods {
		if p == parent {
			t.Errorf("chmod reached %s, outside the target", parent)
		}
	}
	info, err := os.Stat(parent)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o555 {
		t.Errorf("parent mode = %o, expected 555", got)
	}
	if res.Retries < 2 {
		t.Errorf("Retries = %d, expected the root and src retries", res.Retries)
	}
}

func TestForceDeleteFallback(t *testing.T) {
	root := buildTree(t)

	// Listing the root fails for the first read and its retry
	fd := &fsops.FaultyDeleter{ReadDirFailures: map[string]int{root: 2}}
	var out bytes.Buffer
	c := NewCleaner(quietLogger(), nil)
	c.SetDeleter(fd)
	c.SetOutput(&out)

	res := c.ForceDelete(root)

	if !res.UsedFallback {
		t.Fatal("expected fallback to run")
	}
	if !errors.Is(res.PrimaryErr, fsops.ErrInjected) {
		t.Errorf("PrimaryErr = %v", res.PrimaryErr)
	}
	if !res.OK() {
		t.Fatalf("fallback should have removed the tree: %+v", res)
	}
	assertGone(t, root)
	if res.FilesRemoved != 4 || res.DirsRemoved != 3 {
		t.Errorf("counts = %d files %d dirs", res.FilesRemoved, res.DirsRemoved)
	}
	if res.BytesFreed != int64(4*len("content")) {
		t.Errorf("BytesFreed = %d", res.BytesFreed)
	}
	if !strings.Contains(out.String(), "Trying alternative method...") {
		t.Errorf("missing fallback notice in output:\n%s", out.String())
	}
}

func TestForceDeleteFallbackAlsoFails(t *testing.T) {
	root := buildTree(t)

	fd := &fsops.FaultyDeleter{
		ReadDirFailures: map[string]int{root: 2},
		RemoveFailures:  map[string]int{root: -1},
	}
	var out bytes.Buffer
	c := NewCleaner(quietLogger(), nil)
	c.SetDeleter(fd)
	c.SetOutput(&out)

	res := c.ForceDelete(root)

	if !errors.Is(res.Err, ErrFallbackFailed) {
		t.Fatalf("Err = %v, expected ErrFallbackFailed", res.Err)
	}
	if res.Removed {
		t.Error("root should remain")
	}
	if res.Status() != database.StatusFailed {
		t.Errorf("Status() = %s", res.Status())
	}
	// Children are still cleared out
	assertGone(t, filepath.Join(root, "a"))
	assertGone(t, filepath.Join(root, "b.json"))
	if !strings.Contains(out.String(), Remediation) {
		t.Errorf("missing remediation hint:\n%s", out.String())
	}
}

func TestForceDeleteMissingPathIsNoop(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	c := NewCleaner(quietLogger(), nil)

	for i := 0; i < 2; i++ {
		res := c.ForceDelete(missing)
		if !res.OK() {
			t.Errorf("run %d: expected no-op success, got %+v", i, res)
		}
		if res.FilesRemoved != 0 || res.DirsRemoved != 0 {
			t.Errorf("run %d: nothing should be counted, got %+v", i, res)
		}
	}
}

func TestForceDeleteDoesNotFollowSymlinks(t *testing.T) {
	root := buildTree(t)
	outside := filepath.Join(t.TempDir(), "outside")
	if err := os.MkdirAll(outside, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	keep := filepath.Join(outside, "keep.txt")
	if err := os.WriteFile(keep, []byte("keep"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	res := NewCleaner(quietLogger(), nil).ForceDelete(root)

	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("symlink target must survive: %v", err)
	}
}

func TestForceDeleteRecordsHistory(t *testing.T) {
	db, err := database.NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryDB failed: %v", err)
	}
	defer db.Close()

	root := buildTree(t)
	stuck := filepath.Join(root, "b.json")

	c := NewCleaner(quietLogger(), db)
	c.SetDeleter(&fsops.FaultyDeleter{RemoveFailures: map[string]int{stuck: -1}})
	c.ForceDelete(root)

	runs, err := db.GetRecentRuns(1)
	if err != nil {
		t.Fatalf("GetRecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Tool != database.ToolCleanup || runs[0].Status != database.StatusPartial {
		t.Errorf("unexpected run: %+v", runs[0])
	}

	failures, err := db.GetFailures(runs[0].ID)
	if err != nil {
		t.Fatalf("GetFailures failed: %v", err)
	}
	// stuck file and the root
	if len(failures) != 2 {
		t.Errorf("expected 2 recorded failures, got %+v", failures)
	}
}

func TestValidateDelegatesToSafety(t *testing.T) {
	c := NewCleaner(quietLogger(), nil)
	if _, err := c.Validate(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected validation error for missing path")
	}
}
