package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"depot-tools/internal/config"
	"depot-tools/internal/database"
	"depot-tools/internal/exitcodes"
)

const program = "depot-history"

type options struct {
	dbPath     string
	configPath string
	recent     int
	tool       string
	target     string
	failures   int64
	stats      bool
	days       int
	prune      int
	jsonOutput bool
}

var errNoQuery = errors.New("no query selected")

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, out, errOut io.Writer) int {
	code := exitcodes.Success
	opts := &options{}

	cmd := &cobra.Command{
		Use:   program,
		Short: "Query the run history recorded by depot-cleanup and depot-generate",
		Example: `  depot-history --db history.db --recent 10
  depot-history --db history.db --tool cleanup --recent 5
  depot-history --db history.db --target '/tmp/%'
  depot-history --db history.db --failures 42
  depot-history --db history.db --stats --days 7
  depot-history --db history.db --prune 90`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				cfg, err := config.LoadOrDefault(opts.configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				opts.dbPath = cfg.DatabasePath
			}
			if opts.dbPath == "" {
				return errors.New("no history database: pass --db or set database_path in --config")
			}
			code = run(opts, out, errOut)
			if code == exitcodes.Usage {
				return errNoQuery
			}
			return nil
		},
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := cmd.Flags()
	f.StringVar(&opts.dbPath, "db", "", "Path to history database")
	f.StringVar(&opts.configPath, "config", "", "Read database_path from this YAML configuration file")
	f.IntVar(&opts.recent, "recent", 0, "Show N most recent runs")
	f.StringVar(&opts.tool, "tool", "", "Restrict --recent to one tool (cleanup, generate)")
	f.StringVar(&opts.target, "target", "", "Show runs whose target matches (SQL LIKE syntax)")
	f.Int64Var(&opts.failures, "failures", 0, "Show entries a cleanup run left behind")
	f.BoolVar(&opts.stats, "stats", false, "Show per-tool statistics")
	f.IntVar(&opts.days, "days", 30, "Number of days for statistics")
	f.IntVar(&opts.prune, "prune", 0, "Delete runs older than N days and vacuum")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		fmt.Fprintln(errOut, cmd.UsageString())
		return exitcodes.Usage
	}
	return code
}

func run(opts *options, out, errOut io.Writer) int {
	db, err := database.NewHistoryDB(opts.dbPath)
	if err != nil {
		fmt.Fprintf(errOut, "ERROR: Failed to open database %s: %v\n", opts.dbPath, err)
		return exitcodes.Failure
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(errOut, "ERROR: Failed to close database: %v\n", err)
		}
	}()

	switch {
	case opts.prune > 0:
		err = prune(db, opts.prune, out)
	case opts.stats:
		err = showStats(db, opts.days, opts.jsonOutput, out)
	case opts.failures > 0:
		err = showFailures(db, opts.failures, opts.jsonOutput, out)
	case opts.target != "":
		err = showRuns(out, opts.jsonOutput, func() ([]database.Run, error) {
			return db.GetRunsByTarget(opts.target)
		})
	case opts.recent > 0 && opts.tool != "":
		err = showRuns(out, opts.jsonOutput, func() ([]database.Run, error) {
			return db.GetRunsByTool(opts.tool, opts.recent)
		})
	case opts.recent > 0:
		err = showRuns(out, opts.jsonOutput, func() ([]database.Run, error) {
			return db.GetRecentRuns(opts.recent)
		})
	default:
		return exitcodes.Usage
	}

	if err != nil {
		fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return exitcodes.Failure
	}
	return exitcodes.Success
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func showRuns(out io.Writer, jsonOutput bool, query func() ([]database.Run, error)) error {
	runs, err := query()
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}
	if jsonOutput {
		if runs == nil {
			runs = []database.Run{}
		}
		return printJSON(out, runs)
	}
	printRuns(out, runs)
	return nil
}

func showFailures(db *database.HistoryDB, runID int64, jsonOutput bool, out io.Writer) error {
	failures, err := db.GetFailures(runID)
	if err != nil {
		return fmt.Errorf("failed to get failures: %w", err)
	}
	if jsonOutput {
		if failures == nil {
			failures = []database.FailureRecord{}
		}
		return printJSON(out, failures)
	}

	if len(failures) == 0 {
		fmt.Fprintf(out, "No failures recorded for run %d\n", runID)
		return nil
	}

	fmt.Fprintf(out, "Entries left behind by run %d:\n\n", runID)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Op\tPath\tError")
	_, _ = fmt.Fprintln(w, "--\t----\t-----")
	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Op, f.Path, f.ErrorMessage)
	}
	return w.Flush()
}

func showStats(db *database.HistoryDB, days int, jsonOutput bool, out io.Writer) error {
	stats, err := db.GetRunStats(days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}
	if jsonOutput {
		return printJSON(out, stats)
	}

	fmt.Fprintf(out, "Run Statistics (Last %d days)\n", days)
	fmt.Fprintf(out, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))

	if len(stats.ByTool) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	tools := make([]string, 0, len(stats.ByTool))
	for tool := range stats.ByTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	for _, tool := range tools {
		s := stats.ByTool[tool]
		fmt.Fprintf(out, "%s:\n", tool)
		fmt.Fprintf(out, "  Runs:       %d (%d succeeded, %d partial, %d failed)\n", s.Runs, s.Succeeded, s.Partial, s.Failed)
		fmt.Fprintf(out, "  Files:      %s\n", humanize.Comma(s.Files))
		fmt.Fprintf(out, "  Dirs:       %s\n", humanize.Comma(s.Dirs))
		fmt.Fprintf(out, "  Bytes:      %s\n", humanize.Bytes(uint64(max(s.Bytes, 0))))
		if tool == database.ToolCleanup {
			fmt.Fprintf(out, "  Retries:    %s\n", humanize.Comma(s.Retries))
			fmt.Fprintf(out, "  Fallbacks:  %d\n", s.Fallbacks)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func prune(db *database.HistoryDB, days int, out io.Writer) error {
	n, err := db.DeleteOldRuns(days)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	if err := db.Vacuum(); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	fmt.Fprintf(out, "Pruned %d runs older than %d days\n", n, days)
	return nil
}

func printRuns(out io.Writer, runs []database.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWhen\tTool\tStatus\tFiles\tSize\tDuration\tTarget")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------\t-----\t----\t--------\t------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			humanize.Time(r.Timestamp),
			r.Tool,
			r.Status,
			humanize.Comma(int64(r.Files)),
			humanize.Bytes(uint64(max(r.Bytes, 0))),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			r.Target)
	}
	_ = w.Flush()
}
