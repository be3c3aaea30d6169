// Package database provides the SQLite-backed media catalog.
//
// It stores:
//   - Media objects, one per (owner, content hash)
//   - Albums and their member sets
//   - Small key/value metadata such as the last reconciliation time
//
// The database uses WAL mode for concurrent reads and applies its schema
// and column migrations on open. Each mutation commits on its own, so a
// crash mid-reconciliation leaves every already-processed file recorded.
package database
