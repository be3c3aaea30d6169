package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "error"} {
		ReconcileRunsTotal.WithLabelValues(status)
	}

	for _, outcome := range []string{"created", "unchanged", "renamed", "duplicate", "skipped"} {
		ReconcileFilesTotal.WithLabelValues(outcome)
	}

	for _, status := range []string{"success", "error", "timeout"} {
		SnapshotGenerationsTotal.WithLabelValues(status)
	}

	for _, kind := range []string{"image", "video"} {
		ProbesTotal.WithLabelValues(kind, "success")
		ProbesTotal.WithLabelValues(kind, "error")
	}

	volumes := []string{"media", "snapshots", "database", "unknown"}
	for _, op := range []string{"stat", "open"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"find_by_owner_hash", "find_by_id", "upsert_media", "query_media",
		"remove_media", "set_favorite", "set_deleted", "create_album", "get_album", "list_albums",
		"rename_album", "delete_album", "add_album_members", "remove_album_members", "album_name_exists"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
