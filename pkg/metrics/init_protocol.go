package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initProtocolMetrics() {
	r.CommandsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_commands_total",
			Help: "Total number of commands dispatched, labeled by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	r.CommandDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloomd_command_duration_seconds",
			Help:    "Command handling duration in seconds, labeled by command.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"command"},
	)

	r.ConnectionsActive = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bloomd_connections_active",
			Help: "Number of active client connections, labeled by transport (tcp, udp).",
		},
		[]string{"transport"},
	)

	r.BytesReadTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_bytes_read_total",
			Help: "Total bytes read from clients, labeled by transport.",
		},
		[]string{"transport"},
	)

	r.ProtocolErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomd_protocol_errors_total",
			Help: "Total protocol-level errors, labeled by kind (client_error, not_found, internal).",
		},
		[]string{"kind"},
	)
}
