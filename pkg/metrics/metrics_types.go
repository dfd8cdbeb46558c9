// Package metrics holds the process-wide Prometheus registry for bloomd.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics exposed by a bloomd server.
type Registry struct {
	// Filter-level metrics (labeled by filter name where cheap to do so)
	FiltersActive        prometheus.Gauge
	FilterSetsTotal       *prometheus.CounterVec
	FilterChecksTotal     *prometheus.CounterVec
	FilterPageInsTotal    prometheus.Counter
	FilterPageOutsTotal   prometheus.Counter
	FilterFlushesTotal    *prometheus.CounterVec
	FilterFlushDuration   prometheus.Histogram
	FilterScaleEventsTotal prometheus.Counter
	FilterBitmapBytes     prometheus.Gauge

	// Protocol / command metrics
	CommandsTotal      *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
	ConnectionsActive  *prometheus.GaugeVec
	BytesReadTotal     *prometheus.CounterVec
	ProtocolErrorsTotal *prometheus.CounterVec

	// Worker pool metrics
	WorkerPoolQueueDepth prometheus.Gauge
	WorkerPoolTasksTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initFilterMetrics()
	r.initProtocolMetrics()
	r.initWorkerPoolMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry, for
// wiring into promhttp.HandlerFor in pkg/adminhttp.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
