package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"depot-tools/internal/config"
	"depot-tools/internal/database"
	"depot-tools/internal/disk"
	"depot-tools/internal/exitcodes"
	"depot-tools/internal/generate"
	"depot-tools/internal/logging"
	"depot-tools/internal/metrics"
)

const program = "depot-generate"

type options struct {
	projects          int
	components        int
	filesPerComponent int
	seed              int64
	workers           int
	verbose           bool
	configPath        string
	historyDB         string
	metricsFile       string
	logFile           string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop scheduling new projects on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	code := exitcodes.Success
	opts := &options{}

	cmd := &cobra.Command{
		Use:   program + " <directory>",
		Short: "Generate a realistic depot structure with thousands of files",
		Long: `Generate a synthetic version-control depot: projects made of sampled
components, each with sources, headers and unit tests, plus utilities,
configs, docs and integration tests. The same --seed reproduces the same tree.`,
		Example:       program + " /tmp/depot --projects 5 --seed 42",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := applyFlags(cmd, cfg, opts); err != nil {
				return err
			}
			code = run(ctx, args[0], cfg, opts.verbose, out, errOut)
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
	f.IntVar(&opts.projects, "projects", config.DefaultProjects, "Number of projects to generate")
	f.IntVar(&opts.components, "components", config.DefaultComponents, "Number of components per project")
	f.IntVar(&opts.filesPerComponent, "files-per-component", config.DefaultFilesPerComponent, "Number of source files per component")
	f.Int64Var(&opts.seed, "seed", 0, "Random seed; 0 picks one and prints it")
	f.IntVar(&opts.workers, "workers", 1, "Projects generated concurrently")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress details to stderr")
	f.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	f.StringVar(&opts.historyDB, "history-db", "", "Record the run in this SQLite history database")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&opts.logFile, "log-file", "", "Append log lines to this file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		fmt.Fprintln(errOut, cmd.UsageString())
		return exitcodes.Usage
	}
	return code
}

// applyFlags lets explicitly set flags override the configuration file.
// Unlike the file, a flag may ask for zero of something.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *options) error {
	f := cmd.Flags()
	g := &cfg.Generator

	ints := []struct {
		name string
		val  int
		dst  *int
	}{
		{"projects", opts.projects, &g.Projects},
		{"components", opts.components, &g.Components},
		{"files-per-component", opts.filesPerComponent, &g.FilesPerComponent},
		{"workers", opts.workers, &g.Workers},
	}
	for _, fl := range ints {
		if !f.Changed(fl.name) {
			continue
		}
		if fl.val < 0 {
			return fmt.Errorf("--%s cannot be negative: %d", fl.name, fl.val)
		}
		*fl.dst = fl.val
	}

	if f.Changed("seed") {
		g.Seed = opts.seed
	}
	if f.Changed("history-db") {
		cfg.DatabasePath = opts.historyDB
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	if f.Changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	return nil
}

func run(ctx context.Context, dir string, cfg *config.Config, verbose bool, out, errOut io.Writer) int {
	logger := logging.NewCLI(cfg, verbose)
	lg := logging.NewLeveled(logger)

	var db *database.HistoryDB
	if cfg.DatabasePath != "" {
		var err error
		db, err = database.NewHistoryDB(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintf(errOut, "Error: failed to open history database: %v\n", err)
			return exitcodes.Failure
		}
		defer func() {
			if err := db.Close(); err != nil {
				lg.Error("Failed to close database", "error", err)
			}
		}()
	}

	gen, err := generate.New(dir, generate.OptionsFromConfig(cfg.Generator), logger, db)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return exitcodes.Usage
	}

	g := cfg.Generator
	fmt.Fprintf(out, "Generating depot structure in: %s\n", dir)
	fmt.Fprintf(out, "  Projects: %d\n", g.Projects)
	fmt.Fprintf(out, "  Components per project: %d\n", g.Components)
	fmt.Fprintf(out, "  Files per component: %d\n", g.FilesPerComponent)
	fmt.Fprintf(out, "  Seed: %d\n", gen.Seed())
	fmt.Fprintln(out)

	if u, err := disk.Stat(gen.Root()); err == nil {
		lg.Info("Filesystem free space", "path", gen.Root(), "free", humanize.Bytes(uint64(u.FreeBytes)))
	}

	gen.OnProject(func(ps generate.ProjectSummary) {
		fmt.Fprintf(out, "Generating %s... %d files\n", ps.Name, ps.Files)
	})

	sum, genErr := gen.Generate(ctx)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			lg.Error("Failed to write metrics", "error", err)
		}
	}

	if genErr != nil {
		fmt.Fprintf(errOut, "✗ Error: %v\n", genErr)
		fmt.Fprintf(errOut, "  Files written before the error: %d\n", sum.Files)
		return exitcodes.Failure
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Complete!")
	fmt.Fprintf(out, "  Total files: %d\n", sum.Files)
	fmt.Fprintf(out, "  Total size: %s\n", humanize.Bytes(uint64(sum.Bytes)))
	fmt.Fprintf(out, "  Location: %s\n", sum.Root)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Files created with standard permissions (no ownership restrictions).")
	return exitcodes.Success
}
