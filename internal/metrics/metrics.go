package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eastleigh"

// Outcome label values shared by the payment counters.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeMalformed = "malformed"
)

// Payments groups the collectors for the payment lifecycle. A nil
// *Payments is valid and records nothing.
type Payments struct {
	initiations    *prometheus.CounterVec
	callbacks      *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
	expired        prometheus.Counter
}

func NewPayments(reg prometheus.Registerer) *Payments {
	p := &Payments{
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "initiations_total",
			Help:      "Payment initiations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "callbacks_total",
			Help:      "Gateway callbacks by outcome.",
		}, []string{"outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "gateway_duration_seconds",
			Help:      "Latency of charge requests sent to payment gateways.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "expired_total",
			Help:      "Stale pending payments moved to FAILED by the sweeper.",
		}),
	}

	if reg != nil {
		reg.MustRegister(p.initiations, p.callbacks, p.gatewayLatency, p.expired)
	}
	return p
}

func (p *Payments) Initiation(provider, outcome string) {
	if p == nil {
		return
	}
	p.initiations.WithLabelValues(provider, outcome).Inc()
}

func (p *Payments) Callback(outcome string) {
	if p == nil {
		return
	}
	p.callbacks.WithLabelValues(outcome).Inc()
}

func (p *Payments) ObserveGateway(provider string, d time.Duration) {
	if p == nil {
		return
	}
	p.gatewayLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (p *Payments) Expired(n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.expired.Add(float64(n))
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
