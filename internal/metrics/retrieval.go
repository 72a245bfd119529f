package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline metrics.
var (
	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_total",
			Help:      "Completed retrieval invocations by terminal status",
		},
		[]string{"status"}, // "success" / "no_matches" / "error"
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval pipeline duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SimilarityDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_degraded_total",
			Help:      "Similarity queries that failed and were degraded to no matches",
		},
		[]string{"source"},
	)

	RetrievalStaleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_stale_total",
			Help:      "Retrieval results discarded because a newer invocation started",
		},
	)
)

func init() {
	prometheus.MustRegister(RetrievalTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(SimilarityDegradedTotal)
	prometheus.MustRegister(RetrievalStaleTotal)
}
