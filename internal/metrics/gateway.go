package metrics

import "github.com/prometheus/client_golang/prometheus"

// Model gateway Prometheus metrics.
var (
	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contract_insight",
			Name:      "provider_attempts_total",
			Help:      "Total number of model provider attempts",
		},
		[]string{"provider", "task", "outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contract_insight",
			Name:      "provider_request_duration_seconds",
			Help:      "Model provider request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "task"},
	)

	ProviderExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contract_insight",
			Name:      "provider_exhausted_total",
			Help:      "Total number of calls where every provider in the chain failed",
		},
		[]string{"task"},
	)
)

var gatewayMetricsRegistered bool

// RegisterGatewayMetrics registers model gateway metrics. Must be called once from main.
func RegisterGatewayMetrics() {
	if gatewayMetricsRegistered {
		return
	}
	prometheus.MustRegister(ProviderAttemptsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(ProviderExhaustedTotal)
	gatewayMetricsRegistered = true
}
