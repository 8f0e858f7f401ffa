package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tool label values
const (
	ToolCleanup  = "cleanup"
	ToolGenerate = "generate"
)

// Cleanup subsystem metrics
var (
	// CleanupDuration tracks how long force-delete runs take
	CleanupDuration prometheus.Histogram

	// FilesRemovedTotal tracks files (and links) removed
	FilesRemovedTotal prometheus.Counter

	// DirsRemovedTotal tracks directories removed
	DirsRemovedTotal prometheus.Counter

	// BytesFreedTotal tracks bytes held by removed files
	BytesFreedTotal prometheus.Counter

	// RetriesTotal counts clear-protection-and-retry attempts
	RetriesTotal prometheus.Counter

	// FailuresTotal counts entries left behind, by operation
	FailuresTotal *prometheus.CounterVec

	// FallbackTotal counts runs that needed the bottom-up fallback pass
	FallbackTotal prometheus.Counter

	// RunsTotal counts runs per tool and outcome
	RunsTotal *prometheus.CounterVec

	// LastRunTimestamp records Unix timestamp of the last run per tool
	LastRunTimestamp *prometheus.GaugeVec
)

// initCleanupMetrics initializes all cleanup subsystem metrics
func initCleanupMetrics() {
	CleanupDuration = NewDurationHistogram(
		"depot_cleanup_duration_seconds",
		"Duration of force-delete runs in seconds.",
	)

	FilesRemovedTotal = NewCounter(
		"depot_cleanup_files_removed_total",
		"Total number of files and links removed.",
	)

	DirsRemovedTotal = NewCounter(
		"depot_cleanup_dirs_removed_total",
		"Total number of directories removed.",
	)

	BytesFreedTotal = NewBytesCounter(
		"depot_cleanup_bytes_freed_total",
		"Total bytes held by removed files.",
	)

	RetriesTotal = NewCounter(
		"depot_cleanup_retries_total",
		"Total number of operations retried after clearing write protection.",
	)

	FailuresTotal = NewCounterVec(
		"depot_cleanup_failures_total",
		"Total number of entries that could not be removed.",
		[]string{"op"},
	)

	FallbackTotal = NewCounter(
		"depot_cleanup_fallback_total",
		"Total number of runs that fell back to the bottom-up walk.",
	)

	RunsTotal = NewCounterVec(
		"depot_runs_total",
		"Total number of tool runs by outcome.",
		[]string{"tool", "status"},
	)

	LastRunTimestamp = NewGaugeVec(
		"depot_last_run_timestamp",
		"Timestamp of the last run (Unix epoch seconds).",
		[]string{"tool"},
	)
}

// registerCleanupMetrics registers all cleanup metrics with Prometheus
func registerCleanupMetrics() {
	prometheus.MustRegister(CleanupDuration)
	prometheus.MustRegister(FilesRemovedTotal)
	prometheus.MustRegister(DirsRemovedTotal)
	prometheus.MustRegister(BytesFreedTotal)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(FailuresTotal)
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(LastRunTimestamp)
}

// RecordRun updates the per-tool run counters and last run timestamp
func RecordRun(tool string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	RunsTotal.WithLabelValues(tool, status).Inc()
	LastRunTimestamp.WithLabelValues(tool).Set(float64(time.Now().Unix()))
}

// RecordFailure increments the failure counter for op
func RecordFailure(op string) {
	FailuresTotal.WithLabelValues(op).Inc()
}
