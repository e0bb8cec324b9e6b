// Package metrics exposes the service's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repairdesk"

// Metrics holds every collector the service updates.
type Metrics struct {
	registry *prometheus.Registry

	Jobs            *prometheus.CounterVec
	RecordsImported prometheus.Counter
	Evaluations     prometheus.Counter
	RiskyDevices    prometheus.Counter
	Notifications   *prometheus.CounterVec
	QueueLength     prometheus.Gauge
	EventsDropped   prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs by stage and final status.",
		}, []string{"stage", "status"}),
		RecordsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_imported_total",
			Help:      "Service records written by ledger imports.",
		}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evaluations_total",
			Help:      "Customer service-history summaries computed.",
		}),
		RiskyDevices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repeat_risk_devices_total",
			Help:      "Devices found at or above the repeat-service threshold during evaluations.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Repeat-risk notifications by sink and status.",
		}, []string{"sink", "status"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Jobs waiting in the runner queue.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber was full.",
		}),
	}
	m.registry.MustRegister(m.Jobs, m.RecordsImported, m.Evaluations, m.RiskyDevices, m.Notifications, m.QueueLength, m.EventsDropped)
	return m
}

// RecordJob counts a finished job.
func (m *Metrics) RecordJob(stage, status string) {
	m.Jobs.WithLabelValues(stage, status).Inc()
}

// RecordNotification counts a delivery attempt on a sink.
func (m *Metrics) RecordNotification(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Notifications.WithLabelValues(sink, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
