// GrepWise - Log Search, Alerting, and Real-Time Streaming
// Copyright 2026 GrepWise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/grepwise/grepwise

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	EventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_events_accepted_total",
			Help: "Total number of log events accepted from sources",
		},
		[]string{"source"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_events_dropped_total",
			Help: "Total number of log events dropped before indexing",
		},
		[]string{"source", "reason"}, // reason: "buffer_full", "parse_failed", "shutdown"
	)

	IngestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_ingest_errors_total",
			Help: "Total number of ingestion source errors",
		},
		[]string{"source", "error_type"},
	)

	// Write-Behind Buffer Metrics
	BufferUtilization = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grepwise_buffer_utilization",
			Help: "Write-behind buffer fill ratio (0.0 to 1.0)",
		},
	)

	BufferFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grepwise_buffer_flush_duration_seconds",
			Help:    "Duration of buffer flush batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BufferFlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grepwise_buffer_flush_batch_size",
			Help:    "Number of events per flush batch",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	// Partition Metrics
	PartitionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grepwise_partitions_active",
			Help: "Current number of ACTIVE index partitions",
		},
	)

	PartitionsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grepwise_partitions",
			Help: "Current number of index partitions by state",
		},
		[]string{"state"}, // "active", "sealed", "archived"
	)

	IndexedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_indexed_events_total",
			Help: "Total number of events written to the index",
		},
	)

	// Search Metrics
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grepwise_search_duration_seconds",
			Help:    "Duration of search executions in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"}, // "search", "histogram", "aggregation", "alarm"
	)

	SearchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_search_errors_total",
			Help: "Total number of failed search executions",
		},
		[]string{"error_type"}, // "syntax", "unknown_field", "type_mismatch", "internal"
	)

	// Search Cache Metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_search_cache_hits_total",
			Help: "Total number of search cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_search_cache_misses_total",
			Help: "Total number of search cache misses",
		},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_search_cache_evictions_total",
			Help: "Total number of search cache evictions",
		},
		[]string{"reason"}, // "lru", "ttl", "invalidated"
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grepwise_search_cache_entries",
			Help: "Current number of cached search results",
		},
	)

	// Alarm Metrics
	AlarmEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_alarm_evaluations_total",
			Help: "Total number of alarm condition evaluations",
		},
	)

	AlarmFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_alarm_firings_total",
			Help: "Total number of alarm firings",
		},
		[]string{"alarm"},
	)

	AlarmSuppressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_alarm_suppressions_total",
			Help: "Total number of suppressed alarm notifications",
		},
		[]string{"alarm", "reason"}, // reason: "throttle", "grouping"
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_notifications_sent_total",
			Help: "Total number of notifications delivered per channel",
		},
		[]string{"channel", "result"}, // result: "success", "failure"
	)

	// Retention Metrics
	RetentionSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_retention_sweeps_total",
			Help: "Total number of retention sweeps",
		},
	)

	RetentionPartitionsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_retention_partitions_deleted_total",
			Help: "Total number of partitions removed by retention",
		},
	)

	RetentionEventsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grepwise_retention_events_deleted_total",
			Help: "Total number of individual events deleted by retention",
		},
	)

	// Realtime Feed Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_bus_events_published_total",
			Help: "Total number of events published on the internal bus",
		},
		[]string{"topic"},
	)

	BusLagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_bus_events_lagged_total",
			Help: "Total number of bus events skipped by slow subscribers",
		},
		[]string{"topic"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grepwise_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grepwise_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grepwise_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordSearch records a search execution outcome.
func RecordSearch(kind string, duration time.Duration, err error) {
	SearchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		SearchErrors.WithLabelValues("internal").Inc()
	}
}

// RecordFlush records one buffer flush batch.
func RecordFlush(batch int, duration time.Duration) {
	BufferFlushBatchSize.Observe(float64(batch))
	BufferFlushDuration.Observe(duration.Seconds())
	IndexedEvents.Add(float64(batch))
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(channel string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotificationsSent.WithLabelValues(channel, result).Inc()
}

// RecordBreakerTransition records a gobreaker state change.
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
