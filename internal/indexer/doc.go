// Package indexer schedules background reconciliation for the media library.
//
// Every directory directly under the storage root is an owner. The indexer
// runs a reconciliation pass for each of them in several modes:
//   - Initial sweep: all owners on application startup
//   - Periodic sweep: configurable interval-based re-reconciliation
//   - Polling: a cheap check of each owner's media directory modification
//     time, reconciling only owners whose directory changed
//   - Manual trigger: a full sweep or a single owner, on demand
//
// Passes for different owners run concurrently, bounded by the worker count.
// Passes for one owner are serialized by the reconciliation engine itself,
// so a manual trigger racing a scheduled sweep is safe.
package indexer
