// Package metrics provides Prometheus metrics for go-toolrun.
//
// The Collector observes every spawn, output chunk, termination and
// cancellation a Runner performs. Metrics live on a caller-supplied
// registry so several collectors can coexist in tests.
package metrics

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-toolrun/internal/process"
	"github.com/randomizedcoder/go-toolrun/internal/stats"
)

const namespace = "toolrun"

// Collector manages all Prometheus metrics for the runner.
type Collector struct {
	// --- Overview ---
	info    *prometheus.GaugeVec
	running prometheus.Gauge

	// --- Lifecycle ---
	started      *prometheus.CounterVec
	spawnFailed  *prometheus.CounterVec
	terminations *prometheus.CounterVec
	runtime      *prometheus.HistogramVec

	// --- Output ---
	outputBytes  *prometheus.CounterVec
	outputChunks *prometheus.CounterVec

	// --- Cancellation ---
	cancels *prometheus.CounterVec

	// Session statistics (optional)
	runStats *stats.RunStats

	mu          sync.Mutex
	peakRunning int
	current     int
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version  string
	Elevator string
	Stats    *stats.RunStats // receives every termination when set
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the runner (value always 1)",
		}, []string{"version", "elevator"}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes_running",
			Help:      "Processes spawned and not yet terminated",
		}),

		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_started_total",
			Help:      "Processes successfully spawned",
		}, []string{"elevated"}),

		spawnFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Spawn attempts that failed before a process existed",
		}, []string{"reason"}),

		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_terminations_total",
			Help:      "Process terminations by classification",
		}, []string{"classification"}),

		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_runtime_seconds",
			Help:      "Wall time from spawn to termination",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.5,
				1, 5, 10, 30,
				60, 300, 900, 3600,
			},
		}, []string{"classification"}),

		outputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes of process output delivered",
		}, []string{"stream"}),

		outputChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_chunks_total",
			Help:      "Output chunks delivered",
		}, []string{"stream"}),

		cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancel_requests_total",
			Help:      "Cancellation requests by result",
		}, []string{"result"}),

		runStats: cfg.Stats,
	}

	registry.MustRegister(
		c.info,
		c.running,
		c.started,
		c.spawnFailed,
		c.terminations,
		c.runtime,
		c.outputBytes,
		c.outputChunks,
		c.cancels,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version, cfg.Elevator).Set(1)

	return c
}

// =============================================================================
// process.Observer
// =============================================================================

// ProcessStarted records a successful spawn.
func (c *Collector) ProcessStarted(h *process.Handle) {
	c.started.WithLabelValues(strconv.FormatBool(h.Elevated())).Inc()
	c.running.Inc()

	c.mu.Lock()
	c.current++
	if c.current > c.peakRunning {
		c.peakRunning = c.current
	}
	c.mu.Unlock()
}

// SpawnFailed records a spawn error by reason.
func (c *Collector) SpawnFailed(_ process.Command, err error) {
	c.spawnFailed.WithLabelValues(spawnReason(err)).Inc()
}

// OutputReceived records one delivered chunk.
func (c *Collector) OutputReceived(_ *process.Handle, stream string, bytes int) {
	c.outputBytes.WithLabelValues(stream).Add(float64(bytes))
	c.outputChunks.WithLabelValues(stream).Inc()
	if c.runStats != nil {
		c.runStats.AddOutput(bytes)
	}
}

// ProcessTerminated records a termination and its runtime.
func (c *Collector) ProcessTerminated(_ *process.Handle, o process.Outcome, runtime time.Duration) {
	class := o.Classification.String()
	if o.ElevationDenied {
		class = "elevation_denied"
	}
	c.terminations.WithLabelValues(class).Inc()
	c.runtime.WithLabelValues(class).Observe(runtime.Seconds())
	c.running.Dec()

	c.mu.Lock()
	c.current--
	c.mu.Unlock()

	if c.runStats != nil {
		c.runStats.Record(o, runtime)
	}
}

// CancelRequested records a cancellation attempt.
func (c *Collector) CancelRequested(_ *process.Handle, err error) {
	result := "sent"
	switch {
	case err == nil:
	case errors.Is(err, process.ErrNoProcess):
		result = "rejected"
	default:
		result = "error"
	}
	c.cancels.WithLabelValues(result).Inc()
}

// spawnReason maps a spawn error to a low-cardinality label.
func spawnReason(err error) string {
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return "not_found"
	case errors.Is(err, process.ErrEmptyProgram):
		return "invalid_command"
	case errors.Is(err, process.ErrNoElevator):
		return "no_elevator"
	case errors.Is(err, process.ErrElevationDenied):
		return "elevation_denied"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

// PeakRunning returns the highest number of concurrently running processes.
func (c *Collector) PeakRunning() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakRunning
}

var _ process.Observer = (*Collector)(nil)
