// Package logging provides a simple leveled logging interface for the
// media library service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true. Components that log a lot (reconcile,
// snapshot) use a prefixed Logger obtained from For.
package logging
