// Package metrics provides Prometheus metrics for the import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PackageTransitionsTotal counts import package status changes
	PackageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "import",
			Name:      "package_transitions_total",
			Help:      "Total number of import package status transitions by target status",
		},
		[]string{"status"},
	)

	// StagedRecordsTotal counts staging rows created by kind
	StagedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "staging",
			Name:      "records_total",
			Help:      "Total number of staging rows created by entity kind",
		},
		[]string{"entity_type"},
	)

	// ValidationLevelDuration tracks validation level duration in seconds
	ValidationLevelDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "validation",
			Name:      "level_duration_seconds",
			Help:      "Duration of one validation level in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"level"},
	)

	// ValidationIssuesTotal counts validation errors and warnings by level
	ValidationIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "validation",
			Name:      "issues_total",
			Help:      "Total number of validation issues by level and severity",
		},
		[]string{"level", "severity"},
	)

	// ConflictsDetectedTotal counts conflicts created by type
	ConflictsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "duplicates",
			Name:      "conflicts_detected_total",
			Help:      "Total number of duplicate conflicts detected by type",
		},
		[]string{"conflict_type"},
	)

	// DetectionDuration tracks duplicate detection duration in seconds
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "willow",
			Subsystem: "duplicates",
			Name:      "detection_duration_seconds",
			Help:      "Duration of duplicate detection passes in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 120},
		},
	)

	// MergesTotal counts merges by case and outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merges by case and outcome",
		},
		[]string{"case", "status"},
	)

	// ReferencesRepointedTotal counts foreign keys moved by merges
	ReferencesRepointedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "merging",
			Name:      "references_repointed_total",
			Help:      "Total number of production references repointed by merges",
		},
		[]string{"entity_type"},
	)

	// CommittedRecordsTotal counts production rows written by commit
	CommittedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "commit",
			Name:      "records_total",
			Help:      "Total number of production records written by commits",
		},
		[]string{"entity_type"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "willow",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordTransition records an import package status change
func RecordTransition(status string) {
	PackageTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordValidationLevel records one validation level's duration and findings
func RecordValidationLevel(level string, durationSeconds float64, errors, warnings int) {
	ValidationLevelDuration.WithLabelValues(level).Observe(durationSeconds)
	if errors > 0 {
		ValidationIssuesTotal.WithLabelValues(level, "error").Add(float64(errors))
	}
	if warnings > 0 {
		ValidationIssuesTotal.WithLabelValues(level, "warning").Add(float64(warnings))
	}
}

// RecordMerge records a merge outcome
func RecordMerge(mergeCase, entityType string, success bool, referencesUpdated int) {
	status := "success"
	if !success {
		status = "failed"
	}
	MergesTotal.WithLabelValues(mergeCase, status).Inc()
	if referencesUpdated > 0 {
		ReferencesRepointedTotal.WithLabelValues(entityType).Add(float64(referencesUpdated))
	}
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordDetection records a finished duplicate detection pass
func RecordDetection(durationSeconds float64, conflictTypes []string) {
	DetectionDuration.Observe(durationSeconds)
	for _, t := range conflictTypes {
		ConflictsDetectedTotal.WithLabelValues(t).Inc()
	}
}

// RecordCommitted records production rows written for one entity type
func RecordCommitted(entityType string, n int) {
	if n > 0 {
		CommittedRecordsTotal.WithLabelValues(entityType).Add(float64(n))
	}
}
