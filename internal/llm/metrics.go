package llm

import "github.com/prometheus/client_golang/prometheus"

var (
	// llmCalls counts logical calls by terminal outcome ("ok" or an error kind).
	llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of logical LLM calls by outcome.",
		},
		[]string{"outcome"},
	)

	// llmAttemptLat records per-attempt latency, retries included.
	llmAttemptLat = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Duration of individual LLM HTTP attempts in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	llmRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "Total number of LLM retry sleeps.",
		},
	)

	// llmCircuit is 0 closed, 1 open, 2 half-open.
	llmCircuit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llm_circuit_state",
			Help: "LLM circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
	)

	llmTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total tokens consumed by LLM completions.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(llmCalls, llmAttemptLat, llmRetries, llmCircuit, llmTokens)
}
