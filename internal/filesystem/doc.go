/*
Package filesystem provides resilient filesystem operations for the media library.

StatWithRetry and OpenWithRetry wrap os.Stat and os.Open with exponential
backoff on NFS stale file handle errors (ESTALE). All other errors return
immediately. Retries are counted per operation and volume (media, snapshots,
database) in the metrics package.

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

Exists and RemoveIfExists implement the check-then-act style used wherever
reconciliation, lazy snapshot generation and permanent delete can race on the
same file: a file that is already gone is not an error.

	removed, err := filesystem.RemoveIfExists(snapshotPath)
*/
package filesystem
