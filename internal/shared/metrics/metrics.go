package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	documentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "documents_created_total", Help: "Documents committed by create or finalize."},
	)
	documentsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "documents_updated_total", Help: "Committed metadata or content updates."},
	)
	documentsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "documents_deleted_total", Help: "Documents removed from the index."},
	)
	orphanRisk = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "orphan_risk_total", Help: "Best-effort cleanup failures that may have left storage objects behind."},
		[]string{"stage"},
	)
	ingestNotifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "ingest_notify_failures_total", Help: "Ingestion trigger deliveries that failed after a committed change."},
	)
	rateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "rate_limit_allowed_total", Help: "Requests allowed by the rate limiter."},
		[]string{"limiter"},
	)
	rateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "rate_limit_rejected_total", Help: "Requests rejected by the rate limiter."},
		[]string{"limiter"},
	)
	reconcileMarkedFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "reconcile_marked_failed_total", Help: "Index records marked failed because their blob is missing."},
	)
	reconcileRepairedSidecars = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "reconcile_repaired_sidecars_total", Help: "Sidecar descriptions rebuilt from index records."},
	)
	reconcileOrphansDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "reconcile_orphans_deleted_total", Help: "Storage objects deleted because no index record references them."},
	)
	extractionJobsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "extraction_jobs_received_total", Help: "Queue messages picked up by the extraction worker."},
	)
	extractionJobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "extraction_jobs_completed_total", Help: "Extraction jobs that finished and were acknowledged."},
	)
	extractionJobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "extraction_jobs_failed_total", Help: "Extraction jobs left on the queue for redelivery."},
	)
	extractionJobsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "casedocs", Name: "extraction_jobs_discarded_total", Help: "Malformed queue messages deleted without processing."},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casedocs",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)
)

// RegisterCollectors registers every collector on reg. Called once at
// bootstrap; the counters still count when unregistered, so tests need no
// setup.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		documentsCreated,
		documentsUpdated,
		documentsDeleted,
		orphanRisk,
		ingestNotifyFailures,
		rateLimitAllowed,
		rateLimitRejected,
		reconcileMarkedFailed,
		reconcileRepairedSidecars,
		reconcileOrphansDeleted,
		extractionJobsReceived,
		extractionJobsCompleted,
		extractionJobsFailed,
		extractionJobsDiscarded,
		requestDuration,
	)
}

// IncDocumentsCreated increments the created counter.
func IncDocumentsCreated() {
	documentsCreated.Inc()
}

// IncDocumentsUpdated increments the updated counter.
func IncDocumentsUpdated() {
	documentsUpdated.Inc()
}

// IncDocumentsDeleted increments the deleted counter.
func IncDocumentsDeleted() {
	documentsDeleted.Inc()
}

// IncOrphanRisk records a cleanup failure at the given saga stage.
func IncOrphanRisk(stage string) {
	orphanRisk.WithLabelValues(stage).Inc()
}

// IncIngestNotifyFailed increments the trigger failure counter.
func IncIngestNotifyFailed() {
	ingestNotifyFailures.Inc()
}

// IncRateLimitAllowed records an allowed request for the given limiter.
func IncRateLimitAllowed(limiter string) {
	rateLimitAllowed.WithLabelValues(limiter).Inc()
}

// IncRateLimitRejected records a rejected request for the given limiter.
func IncRateLimitRejected(limiter string) {
	rateLimitRejected.WithLabelValues(limiter).Inc()
}

// IncReconcileMarkedFailed increments the sweep failed-record counter.
func IncReconcileMarkedFailed() {
	reconcileMarkedFailed.Inc()
}

// IncReconcileRepairedSidecar increments the sweep sidecar-repair counter.
func IncReconcileRepairedSidecar() {
	reconcileRepairedSidecars.Inc()
}

// IncReconcileOrphanDeleted increments the sweep orphan-deletion counter.
func IncReconcileOrphanDeleted() {
	reconcileOrphansDeleted.Inc()
}

// IncExtractionJobsReceived increments the worker received counter.
func IncExtractionJobsReceived() {
	extractionJobsReceived.Inc()
}

// IncExtractionJobsCompleted increments the worker completed counter.
func IncExtractionJobsCompleted() {
	extractionJobsCompleted.Inc()
}

// IncExtractionJobsFailed increments the worker failure counter.
func IncExtractionJobsFailed() {
	extractionJobsFailed.Inc()
}

// IncExtractionJobsDiscarded increments the malformed-message counter.
func IncExtractionJobsDiscarded() {
	extractionJobsDiscarded.Inc()
}

// ObserveRequestDuration records one served request.
func ObserveRequestDuration(method, route string, status int, seconds float64) {
	requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
