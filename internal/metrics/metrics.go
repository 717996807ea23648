// Package metrics provides Prometheus metrics for mber builds.
// Exports build, stage, publish and digest cache metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build status labels
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds all Prometheus metric collectors for one process. Each instance
// owns a private registry, so several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Build Metrics
	BuildsTotal    *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
	LastBuildFiles prometheus.Gauge

	// Publish Metrics
	PublishedFilesTotal prometheus.Counter
	PublishedBytesTotal prometheus.Counter

	// Digest Cache Metrics
	CacheHits   prometheus.Gauge
	CacheMisses prometheus.Gauge
	CacheSize   prometheus.Gauge

	// Offload Metrics
	UploadsTotal *prometheus.CounterVec

	// System Metrics
	BuildInfo *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	// Build Metrics
	m.BuildsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mber",
			Name:      "builds_total",
			Help:      "Total number of bundle builds by status",
		},
		[]string{"status"},
	)

	m.BuildDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mber",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of a full bundle build",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mber",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each bundle stage",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	m.LastBuildFiles = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mber",
			Name:      "last_build_files",
			Help:      "Number of hashed assets in the last successful build",
		},
	)

	// Publish Metrics
	m.PublishedFilesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mber",
			Name:      "published_files_total",
			Help:      "Total number of hashed assets written to the output directory",
		},
	)

	m.PublishedBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mber",
			Name:      "published_bytes_total",
			Help:      "Total bytes of hashed assets written to the output directory",
		},
	)

	// Digest Cache Metrics
	m.CacheHits = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mber",
			Subsystem: "digest_cache",
			Name:      "hits",
			Help:      "Digest cache hits since process start",
		},
	)

	m.CacheMisses = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mber",
			Subsystem: "digest_cache",
			Name:      "misses",
			Help:      "Digest cache misses since process start",
		},
	)

	m.CacheSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mber",
			Subsystem: "digest_cache",
			Name:      "entries",
			Help:      "Current number of cached digests",
		},
	)

	// Offload Metrics
	m.UploadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mber",
			Subsystem: "offload",
			Name:      "uploads_total",
			Help:      "Total number of asset uploads by provider and status",
		},
		[]string{"provider", "status"},
	)

	// System Metrics
	m.BuildInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mber",
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "environment"},
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordBuild records a finished build
func (m *Metrics) RecordBuild(err error, duration time.Duration) {
	m.BuildsTotal.WithLabelValues(statusLabel(err)).Inc()
	m.BuildDuration.Observe(duration.Seconds())
}

// RecordStage records the duration of one stage
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPublished records the hashed assets written by a build
func (m *Metrics) RecordPublished(files int, bytes int64) {
	m.PublishedFilesTotal.Add(float64(files))
	m.PublishedBytesTotal.Add(float64(bytes))
	m.LastBuildFiles.Set(float64(files))
}

// RecordCache copies digest cache statistics
func (m *Metrics) RecordCache(hits, misses int64, size int) {
	m.CacheHits.Set(float64(hits))
	m.CacheMisses.Set(float64(misses))
	m.CacheSize.Set(float64(size))
}

// RecordUpload records an offload upload
func (m *Metrics) RecordUpload(provider string, err error) {
	m.UploadsTotal.WithLabelValues(provider, statusLabel(err)).Inc()
}

// SetBuildInfo sets build information
func (m *Metrics) SetBuildInfo(version, environment string) {
	m.BuildInfo.WithLabelValues(version, environment).Set(1)
}

// WriteTextfile writes every metric in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func statusLabel(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
