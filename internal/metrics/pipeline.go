package metrics

import "github.com/prometheus/client_golang/prometheus"

// Question answering metrics.
var (
	AskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ask_total",
			Help:      "Answered questions by outcome",
		},
		[]string{"outcome"},
	)

	RetrievalStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_strategy_total",
			Help:      "Retrievals by the strategy that produced the candidates",
		},
		[]string{"strategy"},
	)

	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Answer cache operations by result",
		},
		[]string{"op", "result"}, // result: hit, miss, ok, error
	)

	SynthesisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Answer synthesis requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	SynthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Answer synthesis duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		AskTotal,
		RetrievalStrategyTotal,
		CacheOperationsTotal,
		SynthesisRequestsTotal,
		SynthesisDuration,
	)
}
