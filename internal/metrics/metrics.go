package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Catalog (database) metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_db_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_db_rows_affected",
			Help:    "Rows affected by catalog write operations",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Reconciliation metrics
var (
	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_reconcile_runs_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"status"}, // "success", "error"
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation pass over one owner",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	ReconcileFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_reconcile_files_total",
			Help: "Files classified during reconciliation by outcome",
		},
		[]string{"outcome"}, // "created", "unchanged", "renamed", "duplicate", "skipped"
	)

	ReconcileOrphansRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_reconcile_orphans_removed_total",
			Help: "Catalog records removed because their file vanished",
		},
	)

	ReconcileInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_reconcile_in_progress",
			Help: "Number of reconciliation passes currently running",
		},
	)
)

// Scheduler metrics
var (
	SchedulerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_scheduler_runs_total",
			Help: "Total number of scheduled sweeps over all owners",
		},
	)

	SchedulerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_running",
			Help: "Whether a sweep over all owners is running (1) or not (0)",
		},
	)

	SchedulerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed sweep",
		},
	)

	SchedulerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_last_run_duration_seconds",
			Help: "Duration of the last completed sweep",
		},
	)

	SchedulerWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_scheduler_workers",
			Help: "Number of owners reconciled concurrently during a sweep",
		},
	)

	SchedulerPollChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_scheduler_poll_checks_total",
			Help: "Total number of change detection polls",
		},
	)

	SchedulerPollChangesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_scheduler_poll_changes_detected_total",
			Help: "Owner directories found changed by polling",
		},
	)
)

// Snapshot and probe metrics
var (
	SnapshotGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_snapshot_generations_total",
			Help: "Total number of snapshot generations",
		},
		[]string{"status"}, // "success", "error", "timeout"
	)

	SnapshotGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_snapshot_generation_duration_seconds",
			Help:    "Snapshot generation duration in seconds, excluding slot wait",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SnapshotSlotWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_library_snapshot_slot_wait_seconds",
			Help:    "Time spent waiting for a free encoder slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	SnapshotsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_snapshots_in_flight",
			Help: "Number of encoder subprocesses currently running",
		},
	)

	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_probes_total",
			Help: "Total number of metadata probes",
		},
		[]string{"kind", "status"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_retry_attempts_total",
			Help: "Retry attempts after NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_library_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_library_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_library_memory_paused",
			Help: "Whether scheduled reconciliation is paused for memory pressure (1 = paused)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_library_memory_pauses_total",
			Help: "Total number of times scheduled reconciliation was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_library_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
