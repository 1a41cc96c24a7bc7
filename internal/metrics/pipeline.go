package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contract_insight",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by final status",
		},
		[]string{"status"},
	)

	RunsDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contract_insight",
			Name:      "runs_degraded_total",
			Help:      "Total number of runs that completed with a degraded report",
		},
	)

	StageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contract_insight",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	DocumentBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contract_insight",
			Name:      "document_bytes",
			Help:      "Size of ingested documents in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunsDegradedTotal)
	prometheus.MustRegister(StageDurationSeconds)
	prometheus.MustRegister(DocumentBytes)
	pipelineMetricsRegistered = true
}
