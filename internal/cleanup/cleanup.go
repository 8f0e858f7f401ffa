package cleanup

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"depot-tools/internal/database"
	"depot-tools/internal/fsops"
	"depot-tools/internal/logging"
	"depot-tools/internal/metrics"
	"depot-tools/internal/safety"
)

// Operation names recorded with failures
const (
	OpRemove  = "remove"
	OpRmdir   = "rmdir"
	OpReadDir = "readdir"
	OpStat    = "stat"
)

// Remediation is printed when both removal strategies fail
const Remediation = "Please try running with elevated privileges or check if files are in use."

// ErrFallbackFailed wraps the error that stopped the fallback pass
var ErrFallbackFailed = errors.New("alternative method also failed")

// Failure is one entry that survived its single retry
type Failure struct {
	Path string
	Op   string
	Err  error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Path, f.Err)
}

// Result is the outcome of one force-delete run. Partial success is normal:
// Failures lists what was left behind and Removed reports whether the root is gone.
type Result struct {
	Path         string
	Removed      bool
	FilesRemoved int
	DirsRemoved  int // Includes the root when it was removed
	BytesFreed   int64 // Size of the regular files removed
	Retries      int
	UsedFallback bool
	PrimaryErr   error // Why the fallback ran
	Failures     []Failure
	Err          error // Fatal: fallback could not remove the root
	Duration     time.Duration
}

// OK reports full success
func (r *Result) OK() bool {
	return r.Removed && r.Err == nil
}

// Status maps the result onto the history status values
func (r *Result) Status() string {
	switch {
	case r.OK():
		return database.StatusSuccess
	case r.Err != nil:
		return database.StatusFailed
	default:
		return database.StatusPartial
	}
}

func (r *Result) addFailure(path, op string, err error) {
	r.Failures = append(r.Failures, Failure{Path: path, Op: op, Err: err})
}

// ProgressFunc receives the running count of removed entries. It is called
// once more with done set before the final status line is printed.
type ProgressFunc func(removed int, done bool)

// Cleaner force-deletes directory trees
type Cleaner struct {
	logger    *logging.Leveled
	out       io.Writer
	deleter   fsops.Deleter
	validator *safety.Validator
	db        *database.HistoryDB // Optional run history
	progress  ProgressFunc
}

// NewCleaner creates a Cleaner using the real filesystem and default safety rules
func NewCleaner(logger *log.Logger, db *database.HistoryDB) *Cleaner {
	metrics.Init()
	return &Cleaner{
		logger:    logging.NewLeveled(logger),
		out:       io.Discard,
		deleter:   fsops.OSDeleter{},
		validator: safety.NewValidator(nil, nil),
		db:        db,
	}
}

// SetDeleter replaces the filesystem backend
func (c *Cleaner) SetDeleter(d fsops.Deleter) {
	c.deleter = d
}

// SetValidator replaces the safety rules
func (c *Cleaner) SetValidator(v *safety.Validator) {
	c.validator = v
}

// SetHistory enables run recording; nil disables it
func (c *Cleaner) SetHistory(db *database.HistoryDB) {
	c.db = db
}

// SetOutput sets where user-facing status lines are printed
func (c *Cleaner) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	c.out = w
}

// SetProgress installs a callback invoked after every removed entry
func (c *Cleaner) SetProgress(fn ProgressFunc) {
	c.progress = fn
}

// Validate checks that path names an existing, deletable directory
func (c *Cleaner) Validate(path string) (string, error) {
	return c.validator.ValidateDeleteTarget(path)
}

// ForceDelete removes path and everything beneath it. The primary pass
// clears write protection and retries once per failing entry; if it cannot
// proceed at all, a bottom-up fallback pass runs instead.
func (c *Cleaner) ForceDelete(path string) *Result {
	start := time.Now()
	res := &Result{Path: path}

	c.logger.Info("Starting force delete", "path", path)
	fmt.Fprintf(c.out, "Force deleting: %s\n", path)
	fmt.Fprintln(c.out, "This may take a moment...")

	if err := c.removePrimary(path, res); err != nil {
		res.PrimaryErr = err
		res.UsedFallback = true
		metrics.FallbackTotal.Inc()

		c.logger.Error("Primary removal failed", "path", path, "error", err)
		fmt.Fprintf(c.out, "✗ Error: %v\n", err)
		fmt.Fprintln(c.out, "\nTrying alternative method...")

		if ferr := c.removeFallback(path, res); ferr != nil {
			res.Err = fmt.Errorf("%w: %v", ErrFallbackFailed, ferr)
		}
	}

	if c.progress != nil {
		c.progress(res.FilesRemoved+res.DirsRemoved, true)
	}

	_, lerr := c.deleter.Lstat(path)
	res.Removed = os.IsNotExist(lerr)

	res.Duration = time.Since(start)

	switch {
	case res.OK():
		fmt.Fprintf(c.out, "✓ Successfully deleted %s\n", path)
	case res.Err != nil:
		fmt.Fprintf(c.out, "✗ %v\n", res.Err)
		fmt.Fprintf(c.out, "\n%s\n", Remediation)
	default:
		fmt.Fprintf(c.out, "✗ Could not delete %s: %d entries remain\n", path, len(res.Failures))
	}

	c.finish(res)
	return res
}

// removePrimary walks the tree depth-first. Per-entry failures are recorded
// and skipped; only a root that cannot be inspected or listed is returned as
// an error.
func (c *Cleaner) removePrimary(root string, res *Result) error {
	info, err := c.deleter.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%s %s: %w", OpStat, root, err)
	}
	if !info.IsDir() {
		c.attempt(res, OpRemove, root, false, regularSize(info))
		return nil
	}

	entries, err := c.readDir(root, res)
	if err != nil {
		return fmt.Errorf("%s %s: %w", OpReadDir, root, err)
	}
	for _, e := range entries {
		c.removeEntry(filepath.Join(root, e.Name()), e, res)
	}
	c.attempt(res, OpRmdir, root, true, 0)
	return nil
}

func (c *Cleaner) removeEntry(path string, e os.DirEntry, res *Result) {
	if !e.IsDir() {
		c.attempt(res, OpRemove, path, false, entrySize(e))
		return
	}

	entries, err := c.readDir(path, res)
	if err != nil {
		c.fail(res, OpReadDir, path, err)
		return
	}
	for _, child := range entries {
		c.removeEntry(filepath.Join(path, child.Name()), child, res)
	}
	c.attempt(res, OpRmdir, path, true, 0)
}

// readDir lists path, clearing protection and retrying once on failure
func (c *Cleaner) readDir(path string, res *Result) ([]os.DirEntry, error) {
	entries, err := c.deleter.ReadDir(path)
	if err == nil || os.IsNotExist(err) {
		return entries, nil
	}

	c.retrying(res)
	c.clearProtection(res.Path, path, true)
	return c.deleter.ReadDir(path)
}

// attempt removes one entry. On failure it clears write protection on the
// entry (and its parent, inside the target) and retries exactly once.
func (c *Cleaner) attempt(res *Result, op, path string, isDir bool, size int64) {
	err := c.deleter.Remove(path)
	if err == nil {
		c.removed(res, isDir, size)
		return
	}
	if os.IsNotExist(err) {
		return
	}

	c.retrying(res)
	c.clearProtection(res.Path, path, isDir)

	err = c.deleter.Remove(path)
	switch {
	case err == nil:
		c.removed(res, isDir, size)
	case os.IsNotExist(err):
	default:
		c.fail(res, op, path, err)
	}
}

// clearProtection handles both platforms' rules: the entry's own read-only
// bit (Windows) and the parent directory's write bit (Unix). The root's
// parent lies outside the target and is never touched.
func (c *Cleaner) clearProtection(root, path string, isDir bool) {
	if err := fsops.ClearProtection(c.deleter, path, isDir); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Could not clear write protection", "path", path, "error", err)
	}
	if filepath.Clean(path) == filepath.Clean(root) {
		return
	}
	_ = fsops.ClearProtection(c.deleter, filepath.Dir(path), true)
}

func (c *Cleaner) retrying(res *Result) {
	res.Retries++
	metrics.RetriesTotal.Inc()
}

func (c *Cleaner) removed(res *Result, isDir bool, size int64) {
	if isDir {
		res.DirsRemoved++
	} else {
		res.FilesRemoved++
		res.BytesFreed += size
	}
	if c.progress != nil {
		c.progress(res.FilesRemoved+res.DirsRemoved, false)
	}
}

func (c *Cleaner) fail(res *Result, op, path string, err error) {
	res.addFailure(path, op, err)
	metrics.RecordFailure(op)
	c.logger.Warn("Could not delete", "path", path, "op", op, "error", err)
}

// finish publishes metrics and, when configured, the run history
func (c *Cleaner) finish(res *Result) {
	metrics.CleanupDuration.Observe(res.Duration.Seconds())
	metrics.FilesRemovedTotal.Add(float64(res.FilesRemoved))
	metrics.DirsRemovedTotal.Add(float64(res.DirsRemoved))
	if res.BytesFreed > 0 {
		metrics.BytesFreedTotal.Add(float64(res.BytesFreed))
	}
	metrics.RecordRun(metrics.ToolCleanup, res.OK())

	c.logger.Info("Force delete complete",
		"path", res.Path,
		"status", res.Status(),
		"files", res.FilesRemoved,
		"dirs", res.DirsRemoved,
		"bytes_freed", res.BytesFreed,
		"retries", res.Retries,
		"failures", len(res.Failures),
		"fallback", res.UsedFallback,
		"duration", res.Duration,
	)

	if c.db == nil {
		return
	}

	run := database.Run{
		Tool:         database.ToolCleanup,
		Target:       res.Path,
		Status:       res.Status(),
		Files:        res.FilesRemoved,
		Dirs:         res.DirsRemoved,
		Bytes:        res.BytesFreed,
		Failures:     len(res.Failures),
		Retries:      res.Retries,
		UsedFallback: res.UsedFallback,
		DurationMs:   res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		run.ErrorMessage = res.Err.Error()
	} else if res.PrimaryErr != nil {
		run.ErrorMessage = res.PrimaryErr.Error()
	}

	id, err := c.db.RecordRun(run)
	if err != nil {
		// Don't fail the run if history can't be written
		c.logger.Error("Failed to record run to database", "error", err)
		return
	}

	records := make([]database.FailureRecord, 0, len(res.Failures))
	for _, f := range res.Failures {
		records = append(records, database.FailureRecord{Path: f.Path, Op: f.Op, ErrorMessage: f.Err.Error()})
	}
	if err := c.db.RecordFailures(id, records); err != nil {
		c.logger.Error("Failed to record failures to database", "error", err)
	}
}

// entrySize is the size of a regular file, read before it is removed
func entrySize(e os.DirEntry) int64 {
	if !e.Type().IsRegular() {
		return 0
	}
	info, err := e.Info()
	if err != nil {
		return 0
	}
	return info.Size()
}

func regularSize(info os.FileInfo) int64 {
	if !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}
