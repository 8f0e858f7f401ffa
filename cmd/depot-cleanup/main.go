package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"depot-tools/internal/cleanup"
	"depot-tools/internal/config"
	"depot-tools/internal/confirm"
	"depot-tools/internal/database"
	"depot-tools/internal/disk"
	"depot-tools/internal/exitcodes"
	"depot-tools/internal/logging"
	"depot-tools/internal/metrics"
	"depot-tools/internal/safety"
	"depot-tools/internal/scan"
)

const program = "depot-cleanup"

type options struct {
	yes         bool
	verbose     bool
	configPath  string
	historyDB   string
	metricsFile string
	logFile     string
}

// streams bundles the process I/O so tests can drive the command
type streams struct {
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool // stdin and stdout are terminals
}

func main() {
	s := streams{
		in:          os.Stdin,
		out:         os.Stdout,
		errOut:      os.Stderr,
		interactive: confirm.Interactive(os.Stdin) && confirm.Interactive(os.Stdout),
	}
	os.Exit(execute(os.Args[1:], s))
}

func execute(args []string, s streams) int {
	code := exitcodes.Success
	opts := &options{}

	cmd := &cobra.Command{
		Use:   program + " <directory>",
		Short: "Force delete a depot directory with permission handling",
		Long: `Force delete a depot directory and everything beneath it, clearing
read-only attributes that would otherwise block removal. Entries that still
cannot be removed after one retry are reported and the tool exits 1.`,
		Example:       program + " /tmp/depot --yes",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code = run(cmd, args[0], opts, s)
			return nil
		},
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetIn(s.in)
	cmd.SetOut(s.out)
	cmd.SetErr(s.errOut)

	f := cmd.Flags()
	f.BoolVarP(&opts.yes, "yes", "y", false, "Skip confirmation prompt")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress details to stderr")
	f.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	f.StringVar(&opts.historyDB, "history-db", "", "Record the run in this SQLite history database")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&opts.logFile, "log-file", "", "Append log lines to this file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		fmt.Fprintln(s.errOut, cmd.UsageString())
		return exitcodes.Usage
	}
	return code
}

func run(cmd *cobra.Command, dir string, opts *options, s streams) int {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		fmt.Fprintf(s.errOut, "Error: failed to load config: %v\n", err)
		return exitcodes.Usage
	}
	applyFlags(cmd, cfg, opts)

	logger := logging.NewCLI(cfg, opts.verbose)
	lg := logging.NewLeveled(logger)

	cleaner := cleanup.NewCleaner(logger, nil)
	cleaner.SetValidator(safety.NewValidator(cfg.Cleanup.AllowedRoots, cfg.Cleanup.ProtectedPaths))
	cleaner.SetOutput(s.out)

	target, err := cleaner.Validate(dir)
	switch {
	case errors.Is(err, safety.ErrNotExist):
		// Nothing to do, which counts as success
		fmt.Fprintf(s.out, "Directory does not exist: %s\n", dir)
		return exitcodes.Success
	case errors.Is(err, safety.ErrNotDirectory):
		fmt.Fprintf(s.out, "Not a directory: %s\n", dir)
		return exitcodes.Failure
	case err != nil:
		fmt.Fprintf(s.out, "✗ Refusing to delete %s: %v\n", dir, err)
		lg.Error("Target rejected", "path", dir, "error", err)
		return exitcodes.Failure
	}

	if !opts.yes {
		if !s.interactive {
			lg.Warn("Prompting for confirmation on a non-terminal stdin")
		}
		if !confirm.Confirm(s.in, s.out, target, preview(target)...) {
			fmt.Fprintln(s.out, "Cancelled.")
			return exitcodes.Success
		}
	}

	if cfg.DatabasePath != "" {
		db, err := database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(s.errOut, "Error: failed to open history database: %v\n", err)
			return exitcodes.Failure
		}
		defer func() {
			if err := db.Close(); err != nil {
				lg.Error("Failed to close database", "error", err)
			}
		}()
		cleaner.SetHistory(db)
	}

	if s.interactive {
		p := &progressLine{w: s.out}
		cleaner.SetProgress(p.update)
	}

	before, diskErr := disk.Stat(target)
	res := cleaner.ForceDelete(target)

	if res.FilesRemoved+res.DirsRemoved > 0 {
		fmt.Fprintf(s.out, "  Removed %s files and %s directories (%s)\n",
			humanize.Comma(int64(res.FilesRemoved)),
			humanize.Comma(int64(res.DirsRemoved)),
			humanize.Bytes(uint64(max(res.BytesFreed, 0))))
	}
	for _, f := range res.Failures {
		fmt.Fprintf(s.out, "  Could not delete %s\n", f)
	}
	if diskErr == nil {
		if after, err := disk.Stat(target); err == nil {
			lg.Info("Filesystem free space",
				"before", humanize.Bytes(uint64(before.FreeBytes)),
				"after", humanize.Bytes(uint64(after.FreeBytes)),
				"free_percent", fmt.Sprintf("%.1f", after.FreePercent()))
		}
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			lg.Error("Failed to write metrics", "error", err)
		}
	}

	if !res.OK() {
		return exitcodes.Failure
	}
	return exitcodes.Success
}

// applyFlags lets explicitly set flags override the configuration file
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *options) {
	f := cmd.Flags()
	if f.Changed("history-db") {
		cfg.DatabasePath = opts.historyDB
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	if f.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
}

// progressLine redraws a single status line, at most every 100ms
type progressLine struct {
	w     io.Writer
	last  time.Time
	width int
}

func (p *progressLine) update(removed int, done bool) {
	if done {
		if p.width > 0 {
			fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", p.width))
		}
		return
	}
	if time.Since(p.last) < 100*time.Millisecond {
		return
	}
	p.last = time.Now()
	p.width, _ = fmt.Fprintf(p.w, "\r  %s entries removed", humanize.Comma(int64(removed)))
}

// preview sizes up target for the confirmation prompt. A tree that cannot
// be walked gets no preview; the deletion itself reports what it hits.
func preview(target string) []string {
	sum, err := scan.Tree(target)
	if err != nil {
		return nil
	}
	lines := []string{fmt.Sprintf("Contains %s files, %s directories (%s)",
		humanize.Comma(int64(sum.Files)),
		humanize.Comma(int64(sum.Dirs)),
		humanize.Bytes(uint64(sum.Bytes)))}
	if sum.ReadOnly > 0 {
		lines = append(lines, fmt.Sprintf("%s entries are write-protected", humanize.Comma(int64(sum.ReadOnly))))
	}
	return lines
}
