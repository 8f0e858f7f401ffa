// Package generate writes synthetic depot trees used as cleanup fixtures
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"depot-tools/internal/config"
	"depot-tools/internal/database"
	"depot-tools/internal/fsops"
	"depot-tools/internal/logging"
	"depot-tools/internal/metrics"
)

var (
	ErrNegativeCount = errors.New("counts cannot be negative")
	ErrEmptyPool     = errors.New("name pool is empty")
)

// Options shape a generated depot
type Options struct {
	Projects          int
	Components        int // Sampled per project, capped at the pool size
	FilesPerComponent int
	Seed              int64 // 0 = derive from the clock
	Workers           int   // Projects generated concurrently; <= 1 is sequential
	ComponentNames    []string
	UtilNames         []string
}

// OptionsFromConfig copies the generator section of cfg
func OptionsFromConfig(cfg config.GeneratorCfg) Options {
	return Options{
		Projects:          cfg.Projects,
		Components:        cfg.Components,
		FilesPerComponent: cfg.FilesPerComponent,
		Seed:              cfg.Seed,
		Workers:           cfg.Workers,
		ComponentNames:    cfg.ComponentNames,
		UtilNames:         cfg.UtilNames,
	}
}

// ProjectSummary describes one generated project
type ProjectSummary struct {
	Index  int
	Name   string
	Files  int
	Bytes  int64
	ByKind map[string]int
}

// Summary aggregates a whole generation run
type Summary struct {
	Root     string
	Seed     int64
	Projects []ProjectSummary
	Files    int
	Bytes    int64
	Duration time.Duration
}

// Generator writes projects beneath Root
type Generator struct {
	root       string
	opts       Options
	components []string
	utils      []string
	logger     *logging.Leveled
	db         *database.HistoryDB // Optional run history

	mu        sync.Mutex
	onProject func(ProjectSummary)
}

// New validates opts and resolves the seed. root is made absolute.
func New(root string, opts Options, logger *log.Logger, db *database.HistoryDB) (*Generator, error) {
	if opts.Projects < 0 || opts.Components < 0 || opts.FilesPerComponent < 0 || opts.Workers < 0 {
		return nil, ErrNegativeCount
	}

	components := opts.ComponentNames
	if len(components) == 0 {
		components = ComponentNames
	}
	utils := opts.UtilNames
	if len(utils) == 0 {
		utils = UtilNames
	}
	for _, n := range append(append([]string{}, components...), utils...) {
		if strings.TrimSpace(n) == "" {
			return nil, fmt.Errorf("%w: blank name", ErrEmptyPool)
		}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}

	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	metrics.Init()
	return &Generator{
		root:       abs,
		opts:       opts,
		components: components,
		utils:      utils,
		logger:     logging.NewLeveled(logger),
		db:         db,
	}, nil
}

// Root returns the absolute output directory
func (g *Generator) Root() string {
	return g.root
}

// Seed returns the seed in use; rerunning with it reproduces the same tree
func (g *Generator) Seed() int64 {
	return g.opts.Seed
}

// OnProject installs a callback fired once per finished project, always in
// project order even when several workers run.
func (g *Generator) OnProject(fn func(ProjectSummary)) {
	g.onProject = fn
}

// ProjectName returns the directory name of the project at zero-based index
func ProjectName(index int) string {
	return fmt.Sprintf("project-%02d", index+1)
}

// Generate writes every project. The first filesystem error cancels the
// remaining work and is returned along with what was finished.
func (g *Generator) Generate(ctx context.Context) (*Summary, error) {
	start := time.Now()
	g.logger.Info("Starting depot generation",
		"root", g.root,
		"projects", g.opts.Projects,
		"components", g.opts.Components,
		"files_per_component", g.opts.FilesPerComponent,
		"seed", g.opts.Seed,
		"workers", g.opts.Workers,
	)

	results := make([]*ProjectSummary, g.opts.Projects)
	next := 0
	// Files from projects that stopped part way
	var partialFiles int
	var partialBytes int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)

	for i := 0; i < g.opts.Projects; i++ {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			ps, err := g.GenerateProject(egCtx, i)

			g.mu.Lock()
			defer g.mu.Unlock()
			if err != nil {
				partialFiles += ps.Files
				partialBytes += ps.Bytes
				return err
			}
			results[i] = &ps
			for next < len(results) && results[next] != nil {
				if g.onProject != nil {
					g.onProject(*results[next])
				}
				next++
			}
			return nil
		})
	}
	err := eg.Wait()
	if err == nil {
		// Cancelled before any project started
		err = ctx.Err()
	}

	sum := &Summary{Root: g.root, Seed: g.opts.Seed, Files: partialFiles, Bytes: partialBytes}
	for _, ps := range results {
		if ps == nil {
			continue
		}
		sum.Projects = append(sum.Projects, *ps)
		sum.Files += ps.Files
		sum.Bytes += ps.Bytes
	}
	sum.Duration = time.Since(start)

	g.finish(sum, err)
	return sum, err
}

// GenerateProject writes the project at zero-based index. Its content depends
// only on the seed and index.
func (g *Generator) GenerateProject(ctx context.Context, index int) (ProjectSummary, error) {
	name := ProjectName(index)
	ps := ProjectSummary{Index: index, Name: name, ByKind: make(map[string]int)}
	rng := rand.New(rand.NewPCG(uint64(g.opts.Seed), uint64(index)))
	projectPath := filepath.Join(g.root, name)
	namespace := strings.ReplaceAll(name, "-", "_")

	write := func(kind, path string, t *template.Template, data templateData) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := render(t, data)
		if err != nil {
			return fmt.Errorf("render %s: %w", path, err)
		}
		n, err := fsops.WriteFile(g.root, path, content)
		if err != nil {
			return err
		}
		ps.Files++
		ps.Bytes += int64(n)
		ps.ByKind[kind]++
		return nil
	}
	source := func(kind, path, component string) error {
		t := sourceTemplates[rng.IntN(len(sourceTemplates))]
		return write(kind, path, t, sourceData(filepath.Base(path), namespace, component))
	}

	for _, component := range sample(rng, g.components, g.opts.Components) {
		lower := strings.ToLower(component)
		componentPath := filepath.Join(projectPath, "src", lower)

		for i := 0; i < g.opts.FilesPerComponent; i++ {
			base := fmt.Sprintf("%s_%d", lower, i)
			if err := source(KindSource, filepath.Join(componentPath, base+".cpp"), component); err != nil {
				return ps, err
			}
			if err := source(KindHeader, filepath.Join(componentPath, base+".h"), component); err != nil {
				return ps, err
			}
		}

		testPath := filepath.Join(projectPath, "tests", "unit", lower)
		for i := 0; i < g.opts.FilesPerComponent/2; i++ {
			file := fmt.Sprintf("test_%s_%d.cpp", lower, i)
			if err := write(KindUnitTest, filepath.Join(testPath, file), testTemplate, testData(file, component)); err != nil {
				return ps, err
			}
		}
	}

	utilsPath := filepath.Join(projectPath, "src", "utils")
	for _, util := range sample(rng, g.utils, UtilsPerProject) {
		if err := source(KindUtil, filepath.Join(utilsPath, util+".cpp"), util); err != nil {
			return ps, err
		}
	}

	for _, cn := range ConfigNames {
		path := filepath.Join(projectPath, "config", cn+".json")
		if err := write(KindConfig, path, configTemplate, configData(cn)); err != nil {
			return ps, err
		}
	}

	for _, dn := range DocNames {
		file := dn + ".md"
		if err := write(KindDoc, filepath.Join(projectPath, "docs", file), docTemplate, docData(file, name)); err != nil {
			return ps, err
		}
	}

	for i := 0; i < IntegrationTests; i++ {
		file := fmt.Sprintf("integration_test_%d.cpp", i)
		path := filepath.Join(projectPath, "tests", "integration", file)
		if err := write(KindIntegration, path, testTemplate, testData(file, name)); err != nil {
			return ps, err
		}
	}

	metrics.RecordProject(ps.ByKind, ps.Bytes)
	return ps, nil
}

// sample picks min(k, len(pool)) distinct names in random order
func sample(rng *rand.Rand, pool []string, k int) []string {
	k = min(k, len(pool))
	out := make([]string, 0, k)
	for _, i := range rng.Perm(len(pool))[:k] {
		out = append(out, pool[i])
	}
	return out
}

// finish publishes metrics and, when configured, the run history
func (g *Generator) finish(sum *Summary, err error) {
	metrics.GenerateDuration.Observe(sum.Duration.Seconds())
	metrics.RecordRun(metrics.ToolGenerate, err == nil)

	status := database.StatusSuccess
	if err != nil {
		status = database.StatusFailed
		g.logger.Error("Depot generation failed", "root", g.root, "error", err)
	}
	g.logger.Info("Depot generation complete",
		"root", g.root,
		"status", status,
		"projects", len(sum.Projects),
		"files", sum.Files,
		"bytes", sum.Bytes,
		"duration", sum.Duration,
	)

	if g.db == nil {
		return
	}

	seed := sum.Seed
	projects := len(sum.Projects)
	run := database.Run{
		Tool:       database.ToolGenerate,
		Target:     g.root,
		Status:     status,
		Files:      sum.Files,
		Bytes:      sum.Bytes,
		Seed:       &seed,
		Projects:   &projects,
		DurationMs: sum.Duration.Milliseconds(),
	}
	if err != nil {
		run.ErrorMessage = err.Error()
	}
	if _, err := g.db.RecordRun(run); err != nil {
		// Don't fail the run if history can't be written
		g.logger.Error("Failed to record run to database", "error", err)
	}
}
