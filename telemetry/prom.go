package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus instruments for the engine and its ingress.
type Metrics struct {
	Deposits     prometheus.Counter
	DecodeErrors *prometheus.CounterVec // by reason
	Dropped      *prometheus.CounterVec // by inbox
	Commands     *prometheus.CounterVec // by kind
	Events       *prometheus.CounterVec // by swarm event kind
	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	Agents       *prometheus.GaugeVec // by kind
	ActiveTotal  prometheus.Gauge
	QueenStock   prometheus.Gauge
	ExportErrors prometheus.Counter
	Reconnects   prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "deposits_total",
			Help:      "Deposits applied to the field.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "decode_errors_total",
			Help:      "Payloads dropped because they could not be decoded.",
		}, []string{"reason"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "inbox_dropped_total",
			Help:      "Messages dropped because an inbox was full.",
		}, []string{"inbox"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "commands_total",
			Help:      "Control commands applied.",
		}, []string{"kind"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "swarm_events_total",
			Help:      "Swarm events by kind.",
		}, []string{"kind"}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "ticks_total",
			Help:      "Ticks executed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slimehive",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "slimehive",
			Name:      "agents",
			Help:      "Registered agents.",
		}, []string{"kind"}),
		ActiveTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slimehive",
			Name:      "active_field_total",
			Help:      "Sum of the Active pheromone grid.",
		}),
		QueenStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slimehive",
			Name:      "queen_stock",
			Help:      "Food delivered to the queen.",
		}),
		ExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "export_errors_total",
			Help:      "Failed state exports, recordings and flight log writes.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimehive",
			Name:      "transport_reconnects_total",
			Help:      "Broker reconnections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Deposits, m.DecodeErrors, m.Dropped, m.Commands, m.Events,
			m.Ticks, m.TickDuration, m.Agents, m.ActiveTotal, m.QueenStock,
			m.ExportErrors, m.Reconnects,
		)
	}
	return m
}
