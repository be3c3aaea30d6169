// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - STORAGE_ROOT: Root of the per-owner media directories (default: /data)
//   - DATABASE_DIR: Path to database directory (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - RECONCILE_INTERVAL: Full sweep interval as Go duration, 0 disables (default: 30m)
//   - POLL_INTERVAL: Owner directory change detection interval, 0 disables (default: 30s)
//   - OWNER_WORKERS: Owners reconciled at once during a sweep (default: 2 per CPU, max 8)
//   - SNAPSHOT_WORKERS: Concurrent snapshot extractions (default: GOMAXPROCS, max 8)
//   - SNAPSHOT_TIMEOUT: Per-extraction timeout (default: 60s)
//   - SNAPSHOT_WIDTH: Snapshot width in pixels (default: 320)
//   - PROBE_TIMEOUT: Per-file ffprobe timeout (default: 30s)
//   - FFMPEG_PATH, FFPROBE_PATH: Media tool binaries (default: from PATH)
//   - CONTENT_KEY_TTL: Content access key rotation period (default: 2m)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_CONTENT: Log media content and snapshot requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// Invalid values are logged and replaced by their defaults.
//
// MEMORY_LIMIT, MEMORY_RATIO and GOMEMLIMIT are read earlier by
// [media-library/internal/memory].
//
// # Directory Setup
//
// Both the storage root and the database directory are created if missing
// and must be writable.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
