package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generator subsystem metrics
var (
	// GenerateDuration tracks how long generation runs take
	GenerateDuration prometheus.Histogram

	// ProjectsGeneratedTotal counts generated projects
	ProjectsGeneratedTotal prometheus.Counter

	// FilesGeneratedTotal counts generated files by kind (source, header, unit_test, ...)
	FilesGeneratedTotal *prometheus.CounterVec

	// BytesGeneratedTotal counts bytes written by the generator
	BytesGeneratedTotal prometheus.Counter

	// ProjectFiles observes the number of files per generated project
	ProjectFiles prometheus.Histogram

	// ProjectBytes observes the size of each generated project
	ProjectBytes prometheus.Histogram
)

// ProjectFilesBuckets spans tiny test projects to the default 20x12x8 shape and beyond
var ProjectFilesBuckets = []float64{25, 50, 100, 250, 500, 1000, 5000}

func initGenerateMetrics() {
	GenerateDuration = NewDurationHistogram(
		"depot_generate_duration_seconds",
		"Duration of depot generation runs in seconds.",
	)

	ProjectsGeneratedTotal = NewCounter(
		"depot_generate_projects_total",
		"Total number of projects generated.",
	)

	FilesGeneratedTotal = NewCounterVec(
		"depot_generate_files_total",
		"Total number of files generated, by kind.",
		[]string{"kind"},
	)

	BytesGeneratedTotal = NewBytesCounter(
		"depot_generate_bytes_total",
		"Total bytes written by the generator.",
	)

	ProjectFiles = NewHistogram(
		"depot_generate_project_files",
		"Number of files written per generated project.",
		ProjectFilesBuckets,
	)

	ProjectBytes = NewBytesHistogram(
		"depot_generate_project_bytes",
		"Bytes written per generated project.",
	)
}

func registerGenerateMetrics() {
	prometheus.MustRegister(GenerateDuration)
	prometheus.MustRegister(ProjectsGeneratedTotal)
	prometheus.MustRegister(FilesGeneratedTotal)
	prometheus.MustRegister(BytesGeneratedTotal)
	prometheus.MustRegister(ProjectFiles)
	prometheus.MustRegister(ProjectBytes)
}

// RecordProject records one finished project
func RecordProject(byKind map[string]int, bytes int64) {
	ProjectsGeneratedTotal.Inc()
	total := 0
	for kind, n := range byKind {
		FilesGeneratedTotal.WithLabelValues(kind).Add(float64(n))
		total += n
	}
	BytesGeneratedTotal.Add(float64(bytes))
	ProjectFiles.Observe(float64(total))
	ProjectBytes.Observe(float64(bytes))
}
