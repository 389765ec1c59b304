// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks entity resolutions by entity type and match tier
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "resolutions_total",
			Help:      "Total number of entity resolutions by match type",
		},
		[]string{"entity_type", "match_type"},
	)

	// ResolutionScore tracks the distribution of best match scores
	ResolutionScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "matching",
			Name:      "best_score",
			Help:      "Best fuzzy score found per resolution",
			Buckets:   []float64{0, 25, 50, 65, 75, 85, 90, 95, 99, 100},
		},
		[]string{"entity_type"},
	)

	// IngestionsTotal tracks ingested records by outcome
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ingestion",
			Name:      "records_total",
			Help:      "Total number of ingested records by status",
		},
		[]string{"source", "status"},
	)

	// MergesTotal tracks merge executions by outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "executions_total",
			Help:      "Total number of merge executions by status",
		},
		[]string{"status"},
	)

	// EdgesRepointed tracks edges moved onto a survivor
	EdgesRepointed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "edges_repointed_total",
			Help:      "Total number of edges re-pointed by merges",
		},
	)

	// ProposalDecisionsTotal tracks proposal lifecycle transitions
	ProposalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "proposals",
			Name:      "transitions_total",
			Help:      "Total number of merge proposal transitions by status",
		},
		[]string{"status"},
	)

	// ReconciliationTotal tracks queued and resolved reconciliation tasks
	ReconciliationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "reconciliation",
			Name:      "tasks_total",
			Help:      "Total number of reconciliation tasks by event",
		},
		[]string{"event"},
	)

	// KafkaMessagesTotal tracks consumed and produced kafka messages
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of kafka messages by direction and status",
		},
		[]string{"topic", "direction", "status"},
	)

	// HTTPRequestDuration tracks inbound request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status_code"},
	)
)

func RecordResolution(entityType, matchType string, score float64) {
	ResolutionsTotal.WithLabelValues(entityType, matchType).Inc()
	ResolutionScore.WithLabelValues(entityType).Observe(score)
}

func RecordIngestion(source, status string) {
	IngestionsTotal.WithLabelValues(source, status).Inc()
}

func RecordMerge(status string, edgesMoved int) {
	MergesTotal.WithLabelValues(status).Inc()
	if edgesMoved > 0 {
		EdgesRepointed.Add(float64(edgesMoved))
	}
}

func RecordProposal(status string) {
	ProposalDecisionsTotal.WithLabelValues(status).Inc()
}

func RecordReconciliation(event string) {
	ReconciliationTotal.WithLabelValues(event).Inc()
}

func RecordKafkaMessage(topic, direction, status string) {
	KafkaMessagesTotal.WithLabelValues(topic, direction, status).Inc()
}

func RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, route, statusCode).Observe(durationSeconds)
}
