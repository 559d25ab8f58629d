package resilience

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "dealer"

// Outbound and breaker collectors, registered on the default registry.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "breaker",
			Name:      "opened_total",
			Help:      "Times a breaker opened",
		},
		[]string{"target"},
	)
	OutboundRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "outbound",
			Name:      "attempts_total",
			Help:      "Outbound HTTP attempts by target and result",
		},
		[]string{"target", "result"},
	)
	OutboundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "outbound",
			Name:      "attempt_duration_seconds",
			Help:      "Latency of single outbound HTTP attempts",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundRequests, OutboundDuration)
}
