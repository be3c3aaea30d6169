package middleware

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// responseWriter captures the status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	SkipPaths       []string
	LogHealthChecks bool
	// LogContent logs media content and snapshot downloads. Browsing a
	// gallery produces one of these per thumbnail.
	LogContent bool
	// RedactParams are query parameters whose values are replaced in the log.
	RedactParams []string
}

// DefaultLoggingConfig returns the default configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:       []string{},
		LogHealthChecks: true,
		LogContent:      false,
		RedactParams:    []string{"key"},
	}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// sanitizeLogField removes control characters that could be used for log injection.
func sanitizeLogField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r == '\x00', r == '\x1b':
			continue
		case r < 0x20 && r != '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Logger returns HTTP logging middleware using W3C Extended Log Format.
// Fields: date time c-ip cs-method cs-uri-stem cs-uri-query sc-status
// sc-bytes time-taken cs(Content-Encoding) cs(X-Owner-ID) x-request-id cs(User-Agent)
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			log.Println(formatW3C(r, wrapped, time.Since(start), config.RedactParams))
		})
	}
}

func formatW3C(r *http.Request, rw *responseWriter, duration time.Duration, redact []string) string {
	now := time.Now().UTC()

	return fmt.Sprintf("%s %s %s %s %s %s %d %d %d %s %s %s %s",
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		sanitizeLogField(getClientIP(r)),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		orDash(sanitizeLogField(redactQuery(r.URL.RawQuery, redact))),
		rw.statusCode,
		rw.bytesWritten,
		duration.Milliseconds(),
		orDash(rw.Header().Get("Content-Encoding")),
		orDash(sanitizeLogField(r.Header.Get("X-Owner-ID"))),
		orDash(sanitizeLogField(RequestIDFrom(r.Context()))),
		orDash(escapeW3CField(sanitizeLogField(r.Header.Get("User-Agent")))),
	)
}

// redactQuery replaces the values of the named parameters.
func redactQuery(raw string, params []string) string {
	if raw == "" || len(params) == 0 {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	changed := false
	for _, p := range params {
		if _, ok := values[p]; ok {
			values[p] = []string{"REDACTED"}
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return values.Encode()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// isContentPath reports whether path serves media bytes: /api/media/{id}
// or /api/media/snapshot/{id}.
func isContentPath(path string) bool {
	rest, ok := strings.CutPrefix(path, "/api/media/")
	if !ok || rest == "" {
		return false
	}
	if id, ok := strings.CutPrefix(rest, "snapshot/"); ok {
		return id != "" && !strings.Contains(id, "/")
	}
	if strings.Contains(rest, "/") {
		return false
	}
	switch rest {
	case "key", "parse", "delete", "restore":
		return false
	}
	return true
}

func shouldSkip(path string, config LoggingConfig) bool {
	for _, skipPath := range config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}

	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}

	if !config.LogContent && isContentPath(path) {
		return true
	}

	return false
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// escapeW3CField quotes a value containing spaces or quotes.
func escapeW3CField(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
