package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fixnote"

// Domain metrics for embedding calls, searches and index synchronization.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Query duration in seconds by mode and outcome",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode", "outcome"},
	)

	SyncJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_sync_jobs_total",
			Help:      "Vector index synchronization jobs by outcome",
		},
		[]string{"outcome"}, // "ready" / "failed" / "stale" / "skipped" / "dropped"
	)

	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_sync_queue_depth",
			Help:      "Jobs waiting in the vector index synchronization queues",
		},
	)

	VectorDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_deletes_total",
			Help:      "Vector entry removals by outcome",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Register registers the domain metrics. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			SearchDuration,
			SyncJobsTotal,
			SyncQueueDepth,
			VectorDeletesTotal,
		)
	})
}
