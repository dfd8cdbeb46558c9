package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSystemMetrics() {
	r.UptimeSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomd_uptime_seconds",
			Help: "Seconds since the server started.",
		},
	)

	r.GoRoutines = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomd_goroutines",
			Help: "Current number of goroutines.",
		},
	)

	r.MemoryAllocBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomd_memory_alloc_bytes",
			Help: "Bytes of heap memory currently allocated, from runtime.MemStats.",
		},
	)
}
