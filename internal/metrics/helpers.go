package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Standard histogram buckets for different metric types
var (
	// DurationBuckets: 100ms to 5min for run durations
	DurationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300}

	// BytesBuckets: 1KB to 1GB for storage size tracking
	BytesBuckets = []float64{1024, 10240, 102400, 1048576, 10485760, 104857600, 1073741824}
)

// NewDurationHistogram creates a histogram for tracking durations in seconds
// with standard buckets: [0.1, 0.5, 1, 5, 10, 30, 60, 300]
func NewDurationHistogram(name, help string) prometheus.Histogram {
	return NewHistogram(name, help, DurationBuckets)
}

// NewHistogram creates a histogram with caller-supplied buckets
func NewHistogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	})
}

// NewBytesHistogram creates a histogram for sizes in bytes
// with standard buckets from 1KB to 1GB
func NewBytesHistogram(name, help string) prometheus.Histogram {
	return NewHistogram(name, help, BytesBuckets)
}

// NewBytesCounter creates a counter for tracking bytes
func NewBytesCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
}

// NewCounter creates a standard counter metric
func NewCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
}

// NewCounterVec creates a labeled counter
func NewCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)
}

// NewGaugeVec creates a labeled gauge
func NewGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)
}
