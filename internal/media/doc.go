// Package media turns stored files into catalog facts.
//
// It provides three pieces used by reconciliation and by the lazy snapshot
// path of the library service:
//   - Hasher: BLAKE2b-256 content digests, the identity of a media object
//   - Prober: image header decoding and ffprobe inspection for videos
//   - SnapshotGenerator: bounded, time-limited frame extraction for videos
//
// Snapshot extraction shares one process-wide limit. Callers beyond the limit
// wait for a free slot rather than failing.
package media
