package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sentinel"

// Metrics holds the engine-wide instruments.
type Metrics struct {
	EventsReceived     prometheus.Counter
	EventsProcessed    *prometheus.CounterVec
	AlertsTotal        *prometheus.CounterVec
	DeliveriesTotal    *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	EventsPerSecond    prometheus.Gauge
	RulesEnabled       prometheus.Gauge
	DispatchQueueDepth prometheus.Gauge
	NATSConnected      prometheus.Gauge
}

// NewMetrics creates all engine instruments, unregistered.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total sensor events received from the ingest layer",
		}),

		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Total sensor events processed, by outcome",
		}, []string{"status"}),

		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "total",
			Help:      "Total alerts raised, by detector and severity",
		}, []string{"detector", "severity"}),

		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deliveries",
			Name:      "total",
			Help:      "Total alert delivery attempts, by channel and status",
		}, []string{"channel", "status"}),

		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "duration_seconds",
			Help:      "Per-event pipeline processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		EventsPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "per_second",
			Help:      "Rolling events-per-second rate",
		}),

		RulesEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "enabled",
			Help:      "Number of enabled rules",
		}),

		DispatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Alerts waiting in the async dispatch queue",
		}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsReceived,
		m.EventsProcessed,
		m.AlertsTotal,
		m.DeliveriesTotal,
		m.ProcessingDuration,
		m.EventsPerSecond,
		m.RulesEnabled,
		m.DispatchQueueDepth,
		m.NATSConnected,
	}
}
