package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the control-plane counters. A fresh registry is used instead
// of the global one so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	QuotaAdmissions *prometheus.CounterVec
	QuotaBusy       prometheus.Counter
	WebhookEvents   *prometheus.CounterVec
	LockFailOpen    prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		QuotaAdmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_admissions_total",
			Help: "Quota admission decisions by resource type and outcome.",
		}, []string{"resource", "allowed"}),
		QuotaBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_busy_total",
			Help: "Quota checks rejected because the lease could not be acquired in time.",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Billing webhook deliveries by event name and ingest status.",
		}, []string{"event", "status"}),
		LockFailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_lock_fail_open_total",
			Help: "Lock acquisitions granted without mutual exclusion because the backend was unavailable.",
		}),
	}

	registry.MustRegister(m.QuotaAdmissions, m.QuotaBusy, m.WebhookEvents, m.LockFailOpen)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
