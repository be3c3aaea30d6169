// Package metrics provides Prometheus instrumentation for the media library.
//
// All metrics are prefixed with "media_library_" and registered through
// promauto at package init, so importing the package is enough to expose them
// on the /metrics endpoint.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Catalog Metrics
//   - DBQueryTotal / DBQueryDuration by operation
//   - DBRowsAffected for write operations
//   - DBConnectionsOpen
//
// ## Reconciliation Metrics
//   - ReconcileRunsTotal by status, ReconcileDuration
//   - ReconcileFilesTotal by outcome (created, unchanged, renamed, duplicate, skipped)
//   - ReconcileOrphansRemoved, ReconcileInProgress
//
// ## Scheduler Metrics
//   - SchedulerRunsTotal, SchedulerIsRunning, SchedulerWorkers
//   - SchedulerLastRunTimestamp, SchedulerLastRunDuration
//   - SchedulerPollChecksTotal, SchedulerPollChangesDetected
//
// ## Snapshot Metrics
//   - SnapshotGenerationsTotal by status (success, error, timeout)
//   - SnapshotGenerationDuration and SnapshotSlotWait
//   - SnapshotsInFlight, which never exceeds the configured encoder limit
//   - ProbesTotal by media kind and status
//
// ## Filesystem Metrics
//   - FilesystemRetry* and FilesystemStaleErrors, labelled by operation and
//     volume (media, snapshots, database)
//
// Call InitializeMetrics once at startup so label combinations exist before
// the first event.
package metrics
