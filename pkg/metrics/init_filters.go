package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initFilterMetrics() {
	r.FiltersActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomd_filters_active",
			Help: "Number of filters currently registered (Active or Proxy).",
		},
	)

	r.FilterSetsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_filter_sets_total",
			Help: "Total number of set operations, labeled by outcome (hit = novel key, miss = already present).",
		},
		[]string{"outcome"},
	)

	r.FilterChecksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_filter_checks_total",
			Help: "Total number of check operations, labeled by outcome (hit = present, miss = absent).",
		},
		[]string{"outcome"},
	)

	r.FilterPageInsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "bloomd_filter_page_ins_total",
			Help: "Total number of Proxy-to-Active fault-ins across all filters.",
		},
	)

	r.FilterPageOutsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "bloomd_filter_page_outs_total",
			Help: "Total number of Active-to-Proxy cold unmaps across all filters.",
		},
	)

	r.FilterFlushesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_filter_flushes_total",
			Help: "Total number of flush attempts, labeled by outcome (ok, error).",
		},
		[]string{"outcome"},
	)

	r.FilterFlushDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bloomd_filter_flush_duration_seconds",
			Help:    "Duration of a single filter flush.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	r.FilterScaleEventsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "bloomd_filter_scale_events_total",
			Help: "Total number of times a scaling filter appended a new sub-filter.",
		},
	)

	r.FilterBitmapBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomd_filter_bitmap_bytes",
			Help: "Sum of on-disk bitmap bytes across all known filters, refreshed on flush.",
		},
	)
}
