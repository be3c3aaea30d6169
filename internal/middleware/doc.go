// Package middleware provides HTTP middleware for the media library server.
//
// It includes:
//   - Request ids, generated or taken from X-Request-ID
//   - Request logging in W3C Extended Log Format, with content keys redacted
//   - Prometheus request metrics labelled by route template
//   - gzip compression of JSON responses
package middleware
