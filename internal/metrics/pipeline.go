package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	RouterDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorintel",
			Name:      "router_decisions_total",
			Help:      "Routing decisions by mode",
		},
		[]string{"mode"},
	)

	StructuredOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorintel",
			Name:      "structured_outcomes_total",
			Help:      "Structured pipeline outcomes by terminal stage",
		},
		[]string{"stage"}, // "done", "retrieval_only", "planning_failed", ...
	)

	GuardrailRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorintel",
			Name:      "guardrail_rejections_total",
			Help:      "Guardrail rejections by check",
		},
		[]string{"check"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vendorintel",
			Name:      "query_duration_seconds",
			Help:      "Structured store query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
		[]string{"status"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendorintel",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding batch requests",
		},
		[]string{"status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vendorintel",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding batch request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

func init() {
	prometheus.MustRegister(RouterDecisionsTotal)
	prometheus.MustRegister(StructuredOutcomesTotal)
	prometheus.MustRegister(GuardrailRejectionsTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
}
