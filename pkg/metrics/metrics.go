package metrics

import (
	"runtime"
	"time"
)

// RecordSet records the outcome of a set/multi-set key operation.
func (r *Registry) RecordSet(novel bool) {
	if novel {
		r.FilterSetsTotal.WithLabelValues("hit").Inc()
	} else {
		r.FilterSetsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordCheck records the outcome of a check/multi check operation.
func (r *Registry) RecordCheck(present bool) {
	if present {
		r.FilterChecksTotal.WithLabelValues("hit").Inc()
	} else {
		r.FilterChecksTotal.WithLabelValues("miss").Inc()
	}
}

// RecordFlush records a flush attempt and its duration.
func (r *Registry) RecordFlush(outcome string, duration time.Duration) {
	r.FilterFlushesTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		r.FilterFlushDuration.Observe(duration.Seconds())
	}
}

// RecordCommand records a dispatched command and its duration.
func (r *Registry) RecordCommand(command, outcome string, duration time.Duration) {
	r.CommandsTotal.WithLabelValues(command, outcome).Inc()
	r.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordProtocolError records a protocol-level error by kind.
func (r *Registry) RecordProtocolError(kind string) {
	r.ProtocolErrorsTotal.WithLabelValues(kind).Inc()
}

// RefreshSystemMetrics samples runtime statistics. Intended to be called
// periodically (e.g. alongside the cold-sweep tick).
func (r *Registry) RefreshSystemMetrics(startedAt time.Time) {
	r.UptimeSeconds.Set(time.Since(startedAt).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	r.MemoryAllocBytes.Set(float64(mem.Alloc))
}
