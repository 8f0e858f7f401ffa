package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"depot-tools/internal/config"
)

// New creates a logger writing to stderr
func New() *log.Logger {
	return NewWithConfig(nil)
}

// NewWithConfig creates a logger writing to stderr and, when cfg names a log
// file, to that file as well. Stdout is left to the tools' own report lines.
func NewWithConfig(cfg *config.Config) *log.Logger {
	return newLogger(cfg, os.Stderr)
}

// NewCLI is NewWithConfig for the command-line tools: stderr only receives
// log lines when verbose is set, the log file (if any) always does.
func NewCLI(cfg *config.Config, verbose bool) *log.Logger {
	var console io.Writer = io.Discard
	if verbose {
		console = os.Stderr
	}
	return newLogger(cfg, console)
}

func newLogger(cfg *config.Config, console io.Writer) *log.Logger {
	if cfg == nil || cfg.Logging.File == "" {
		return log.New(console, "", log.LstdFlags|log.Lmicroseconds)
	}

	filePath := cfg.Logging.File
	if dir := filepath.Dir(filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("failed to ensure log directory %s: %v", dir, err)
		}
	}

	rotateDays := 30 // default
	if cfg.Logging.RotationDays > 0 {
		rotateDays = cfg.Logging.RotationDays
	}

	// Rotate logs if needed
	rotateLogsIfNeeded(filePath, rotateDays)

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", filePath, err)
		return log.New(console, "", log.LstdFlags|log.Lmicroseconds)
	}

	mw := io.MultiWriter(console, f)
	return log.New(mw, "", log.LstdFlags|log.Lmicroseconds)
}

// Leveled adds [LEVEL] prefixes and key-value formatting on top of a standard logger
type Leveled struct {
	*log.Logger
}

// NewLeveled wraps logger; a nil logger falls back to log.Default()
func NewLeveled(logger *log.Logger) *Leveled {
	if logger == nil {
		logger = log.Default()
	}
	return &Leveled{Logger: logger}
}

func (l *Leveled) Info(msg string, args ...interface{}) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *Leveled) Warn(msg string, args ...interface{}) {
	l.logWithLevel("WARN", msg, args...)
}

func (l *Leveled) Error(msg string, args ...interface{}) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *Leveled) logWithLevel(level, msg string, args ...interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	l.Logger.Println(b.String())
}

// rotateLogsIfNeeded rotates log files older than the specified days
func rotateLogsIfNeeded(logPath string, rotationDays int) {
	info, err := os.Stat(logPath)
	if err != nil {
		// Log file doesn't exist yet, nothing to rotate
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)
	if info.ModTime().Before(cutoffTime) {
		timestamp := info.ModTime().Format("20060102-150405")
		rotatedPath := logPath + "." + timestamp

		if err := os.Rename(logPath, rotatedPath); err != nil {
			log.Printf("failed to rotate log file: %v", err)
			return
		}

		cleanupOldLogs(logPath, rotationDays)
	}
}

// cleanupOldLogs removes rotated log files older than rotation days
func cleanupOldLogs(logPath string, rotationDays int) {
	logDir := filepath.Dir(logPath)
	baseName := filepath.Base(logPath)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, baseName+".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			fullPath := filepath.Join(logDir, name)
			if err := os.Remove(fullPath); err != nil {
				log.Printf("failed to remove old log file %s: %v", fullPath, err)
			}
		}
	}
}
