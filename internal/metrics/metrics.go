// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package metrics declares the Prometheus collectors for Mediaforge and the
// Record helpers that components call instead of touching collectors
// directly. All collectors register with the default registry via promauto
// and are served on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload metrics
var (
	UploadSessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_upload_sessions_created_total",
			Help: "Upload sessions created, by media class (image, video)",
		},
		[]string{"media_class"},
	)

	UploadChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_upload_chunks_total",
			Help: "Chunk submissions by result (accepted, duplicate, rejected)",
		},
		[]string{"result"},
	)

	UploadChunkBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_upload_chunk_bytes_total",
			Help: "Bytes of newly accepted chunk data",
		},
	)

	UploadFinalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_upload_finalizations_total",
			Help: "Finalization attempts by outcome (completed, corrupted, error)",
		},
		[]string{"outcome"},
	)

	UploadFinalizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediaforge_upload_finalize_duration_seconds",
			Help:    "Time to reassemble chunks into object storage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	UploadSessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_upload_sessions_expired_total",
			Help: "Upload sessions expired by the sweeper or aborted by clients",
		},
	)
)

// Storage metrics
var (
	ObjectStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_objectstore_operations_total",
			Help: "Object storage operations by backend, operation and result",
		},
		[]string{"backend", "operation", "result"},
	)

	ObjectStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_objectstore_operation_duration_seconds",
			Help:    "Object storage operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	BadgerGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_badger_gc_runs_total",
			Help: "BadgerDB value log GC runs by result (rewritten, noop, error)",
		},
		[]string{"result"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_duckdb_query_duration_seconds",
			Help:    "DuckDB query latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_duckdb_query_errors_total",
			Help: "DuckDB query errors",
		},
		[]string{"operation", "table"},
	)
)

// Transcoding metrics
var (
	TranscodeJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_transcode_jobs_total",
			Help: "Transcoding job transitions by profile and resulting status",
		},
		[]string{"profile", "status"},
	)

	TranscodeJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_transcode_job_duration_seconds",
			Help:    "Wall time from start to completion of a transcoding job",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"profile"},
	)

	TranscodeJobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_transcode_jobs_running",
			Help: "Jobs currently held by a worker",
		},
	)

	TranscodeProgressRegressions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_transcode_progress_regressions_total",
			Help: "Progress reports lower than the recorded value",
		},
	)
)

// CDN metrics
var (
	CDNRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_cdn_requests_total",
			Help: "CDN management API calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	CDNRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_cdn_request_duration_seconds",
			Help:    "CDN management API latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CDNRenditionsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_cdn_renditions_published_total",
			Help: "Renditions that received a playback URL",
		},
	)
)

// Event bus metrics
var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_events_published_total",
			Help: "Events published by topic and result",
		},
		[]string{"topic", "result"},
	)

	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_events_handled_total",
			Help: "Events handled by topic and result",
		},
		[]string{"topic", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediaforge_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// HTTP and WebSocket metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaforge_api_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaforge_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_api_active_requests",
			Help: "In-flight HTTP requests",
		},
	)

	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaforge_websocket_connections_active",
			Help: "Open WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaforge_websocket_messages_sent_total",
			Help: "Job status messages written to WebSocket clients",
		},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordChunk counts a chunk submission and, when newly accepted, its bytes.
func RecordChunk(outcome string, size int) {
	UploadChunks.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		UploadChunkBytes.Add(float64(size))
	}
}

// RecordFinalize records one finalization attempt.
func RecordFinalize(outcome string, d time.Duration) {
	UploadFinalizations.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		UploadFinalizeDuration.Observe(d.Seconds())
	}
}

// RecordObjectStoreOp records an object storage call.
func RecordObjectStoreOp(backend, op string, d time.Duration, err error) {
	ObjectStoreOps.WithLabelValues(backend, op, result(err)).Inc()
	ObjectStoreDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// RecordDBQuery records a DuckDB query.
func RecordDBQuery(operation, table string, d time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordJobTransition counts a job entering status.
func RecordJobTransition(profile, status string) {
	TranscodeJobs.WithLabelValues(profile, status).Inc()
}

// RecordCDNRequest records a CDN management API call.
func RecordCDNRequest(op string, d time.Duration, err error) {
	CDNRequests.WithLabelValues(op, result(err)).Inc()
	CDNRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordEventPublished records a publish attempt.
func RecordEventPublished(topic string, err error) {
	EventsPublished.WithLabelValues(topic, result(err)).Inc()
}

// RecordEventHandled records a handler invocation.
func RecordEventHandled(topic string, err error) {
	EventsHandled.WithLabelValues(topic, result(err)).Inc()
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, endpoint string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
