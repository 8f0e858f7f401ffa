package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var initOnce sync.Once

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initCleanupMetrics()
		initGenerateMetrics()

		registerCleanupMetrics()
		registerGenerateMetrics()

		// Present in the output even before the first run
		LastRunTimestamp.WithLabelValues(ToolCleanup).Set(0)
		LastRunTimestamp.WithLabelValues(ToolGenerate).Set(0)
	})
}

// WriteTextfile writes every registered metric to path in the text exposition
// format read by node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory %s: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
