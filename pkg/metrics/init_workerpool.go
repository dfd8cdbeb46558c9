package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initWorkerPoolMetrics() {
	r.WorkerPoolQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomd_worker_pool_queue_depth",
			Help: "Approximate number of tasks queued in the blocking-operation worker pool.",
		},
	)

	r.WorkerPoolTasksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_worker_pool_tasks_total",
			Help: "Total tasks submitted to the worker pool, labeled by kind (command, flush_tick, cold_sweep_tick).",
		},
		[]string{"kind"},
	)
}
