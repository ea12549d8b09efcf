// Package metrics holds the Prometheus instruments for the complaint portal.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicdesk/complaint-portal/internal/model"
)

// Metrics bundles the counters on a private registry so tests can build as
// many instances as they like.
type Metrics struct {
	registry      *prometheus.Registry
	Submitted     prometheus.Counter
	Verifications *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "complaints_submitted_total",
			Help: "Complaints accepted through the submission form.",
		}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_verifications_total",
			Help: "Verification attempts by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "complaint_notifications_total",
			Help: "Notification mails by kind (submitter, admin) and result (delivered, failed).",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(m.Submitted, m.Verifications, m.Notifications)
	return m
}

func (m *Metrics) ObserveVerification(o model.Outcome) {
	m.Verifications.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) ObserveNotification(kind string, delivered bool) {
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.Notifications.WithLabelValues(kind, result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
