// Package observability exposes the Prometheus counters of the live feed.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campus_chat"

// Metrics groups every collector of the process.
// A dedicated registry is used so tests can build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	MessagesAppended    prometheus.Counter
	AppendFailures      prometheus.Counter
	MessagesTrimmed     prometheus.Counter
	TrimFailures        prometheus.Counter
	BroadcastsDelivered prometheus.Counter
	BroadcastsDropped   prometheus.Counter
	ActiveConnections   prometheus.Gauge
	QueueLength         prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		MessagesAppended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages durably appended to the store.",
		}),
		AppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_failures_total",
			Help:      "Submissions dropped because the store rejected the write.",
		}),
		MessagesTrimmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_trimmed_total",
			Help:      "Messages deleted by the retention trimmer.",
		}),
		TrimFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trim_failures_total",
			Help:      "Trim runs that failed and will be retried on the next append.",
		}),
		BroadcastsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_delivered_total",
			Help:      "Events handed to a connection sink.",
		}),
		BroadcastsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_dropped_total",
			Help:      "Events a connection sink could not accept in time.",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "WebSocket connections currently subscribed to the feed.",
		}),
		QueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_queue_length",
			Help:      "Broadcasts waiting for the fan-out worker, sampled periodically.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gather is used by tests to read current values.
func (m *Metrics) Gather() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	values := make(map[string]float64, len(families))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return values, nil
}
