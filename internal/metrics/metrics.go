// Package metrics holds the Prometheus collectors for the registration subsystem.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registrations   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	retries         *prometheus.CounterVec
	reaperSweeps    *prometheus.CounterVec
	reaperExpired   prometheus.Counter
	latePayments    prometheus.Counter
	reserveDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registrations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_registrations_total",
				Help: "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_registration_transitions_total",
				Help: "Applied registration state transitions",
			},
			[]string{"from", "to"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_capacity_tx_retries_total",
				Help: "Coordinator transactions retried after a transient storage conflict",
			},
			[]string{"operation"},
		),
		reaperSweeps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_registration_reaper_sweeps_total",
				Help: "Reaper sweeps by result",
			},
			[]string{"result"},
		),
		reaperExpired: f.NewCounter(
			prometheus.CounterOpts{
				Name: "event_registration_reaper_expired_total",
				Help: "Pending registrations expired by the reaper",
			},
		),
		latePayments: f.NewCounter(
			prometheus.CounterOpts{
				Name: "event_registration_late_payments_total",
				Help: "Payments completed after their registration was cancelled",
			},
		),
		reserveDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "event_capacity_reserve_duration_seconds",
				Help:    "Duration of atomic slot reservations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
	}
}

// Registration counts one register attempt with its outcome (confirmed, pending, full, closed, duplicate, error).
func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) ReaperSweep(result string, expired int) {
	if m == nil {
		return
	}
	m.reaperSweeps.WithLabelValues(result).Inc()
	m.reaperExpired.Add(float64(expired))
}

// LatePayment counts a completed payment recorded on an already cancelled registration.
func (m *Metrics) LatePayment() {
	if m == nil {
		return
	}
	m.latePayments.Inc()
}

func (m *Metrics) ObserveReserve(d time.Duration) {
	if m == nil {
		return
	}
	m.reserveDuration.Observe(d.Seconds())
}
