package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type GeneratorCfg struct {
	Projects          int      `yaml:"projects" json:"projects"`
	Components        int      `yaml:"components" json:"components"`                   // Components sampled per project
	FilesPerComponent int      `yaml:"files_per_component" json:"files_per_component"` // Source files (and headers) per component
	Seed              int64    `yaml:"seed" json:"seed"`                               // 0 = derive from the clock
	Workers           int      `yaml:"workers" json:"workers"`                         // Projects generated concurrently (default: 1)
	ComponentNames    []string `yaml:"component_names" json:"component_names"`         // Overrides the built-in component pool
	UtilNames         []string `yaml:"util_names" json:"util_names"`                   // Overrides the built-in utility pool
}

type CleanupCfg struct {
	AllowedRoots   []string `yaml:"allowed_roots" json:"allowed_roots"`     // Empty = any location
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"` // Added to the built-in protected trees
}

type LoggingCfg struct {
	File         string `yaml:"file" json:"file"`                   // Optional log file, teed with stderr
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type Config struct {
	Generator    GeneratorCfg `yaml:"generator" json:"generator"`
	Cleanup      CleanupCfg   `yaml:"cleanup" json:"cleanup"`
	Logging      LoggingCfg   `yaml:"logging" json:"logging"`
	DatabasePath string       `yaml:"database_path" json:"database_path"` // SQLite run history; empty disables
	MetricsFile  string       `yaml:"metrics_file" json:"metrics_file"`   // Prometheus textfile output; empty disables
}

const (
	DefaultProjects          = 20
	DefaultComponents        = 12
	DefaultFilesPerComponent = 8
)

var (
	errInvalidPath   = errors.New("path must be absolute")
	errNegativeCount = errors.New("generator counts cannot be negative")
	errEmptyName     = errors.New("name pools cannot contain empty names")
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	// Defaults never fail validation.
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when set and falls back to Default otherwise
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: all defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	g := &c.Generator
	if g.Projects < 0 || g.Components < 0 || g.FilesPerComponent < 0 || g.Workers < 0 {
		return errNegativeCount
	}

	if g.Projects == 0 {
		g.Projects = DefaultProjects
	}
	if g.Components == 0 {
		g.Components = DefaultComponents
	}
	if g.FilesPerComponent == 0 {
		g.FilesPerComponent = DefaultFilesPerComponent
	}
	if g.Workers == 0 {
		g.Workers = 1
	}

	for _, n := range append(append([]string{}, g.ComponentNames...), g.UtilNames...) {
		if n == "" {
			return errEmptyName
		}
	}

	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	cleaned := make([]string, 0, len(c.Cleanup.AllowedRoots))
	for _, p := range c.Cleanup.AllowedRoots {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("allowed_roots: %w", err)
		}
		cleaned = append(cleaned, cp)
	}
	c.Cleanup.AllowedRoots = cleaned

	for i, p := range c.Cleanup.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		c.Cleanup.ProtectedPaths[i] = cp
	}

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}
