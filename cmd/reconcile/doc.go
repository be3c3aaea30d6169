// Command reconcile runs reconciliation passes from the command line
// against the same database and storage root as the server.
//
// Usage:
//
//	reconcile -owner alice
//	reconcile -owner alice,bob -format kv
//	reconcile -all -timeout 10m
//
// Results are printed as a table when stdout is a terminal and as
// key=value lines otherwise. The exit status is 1 if any pass failed.
//
// Environment:
//
//   - STORAGE_ROOT: storage root (default: /data)
//   - DATABASE_DIR: database directory (default: /database)
//   - FFMPEG_PATH, FFPROBE_PATH: media tool binaries
package main
