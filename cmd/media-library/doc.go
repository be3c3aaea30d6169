// Package main is the media library server.
//
// The server keeps a per-owner catalog of media files in step with what is
// on disk under STORAGE_ROOT/{owner}/media, and serves it over HTTP.
//
// # Application Lifecycle
//
//  1. Configuration Loading: heap limit from MEMORY_LIMIT, environment
//     variables, directory checks
//  2. Database Initialization: SQLite catalog with migrations
//  3. Component Initialization:
//     - Snapshot generator with a bounded pool of ffmpeg extractions
//     - Reconciliation engine (hash, probe, snapshot, catalog)
//     - Scheduler: initial sweep, change polling and periodic sweeps,
//       held back by the memory monitor under heap pressure
//     - Content key store for media and snapshot URLs
//  4. HTTP Server Setup: routes, request id, logging, compression, metrics
//  5. Graceful Shutdown on SIGINT/SIGTERM
//
// # HTTP Servers
//
//  1. Main Server (PORT, default 8080): /api/media, /api/albums, health
//     and version endpoints. The caller's owner id is taken from the
//     X-Owner-ID header set by the fronting identity proxy.
//  2. Metrics Server (METRICS_PORT, default 9090, optional): /metrics and
//     /health.
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests (30s timeout)
//  2. Stop the memory monitor and the scheduler; running passes are cancelled and any ffmpeg
//     child processes are killed
//  3. Stop background maintenance
//  4. Shutdown the metrics server
//  5. Close the database
//
// See [media-library/internal/startup] for the environment variables.
package main
