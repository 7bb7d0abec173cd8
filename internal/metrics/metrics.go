package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skybooking"

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	bookingsCreated   prometheus.Counter
	statusTransitions *prometheus.CounterVec
	payments          *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		bookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created in pending state.",
		}),
		statusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_transitions_total",
			Help:      "Applied booking status transitions by target status and actor.",
		}, []string{"to", "actor"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Provider webhook events by type and result.",
		}, []string{"type", "result"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of calls to external providers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
	}
}

func (m *Metrics) BookingCreated() {
	if m == nil {
		return
	}
	m.bookingsCreated.Inc()
}

func (m *Metrics) StatusTransition(to, actor string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to, actor).Inc()
}

func (m *Metrics) Payment(method, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// ObserveProvider records the time elapsed since start.
func (m *Metrics) ObserveProvider(provider, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}
