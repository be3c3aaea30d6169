package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes lists media types worth compressing. Media content
	// is already compressed and never matches.
	CompressibleTypes []string
}

// DefaultCompressionConfig returns defaults suited to the JSON API.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// gzipPools holds one writer pool per compression level.
var gzipPools sync.Map

func gzipPool(level int) *sync.Pool {
	if p, ok := gzipPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := gzipPools.LoadOrStore(level, &sync.Pool{
		New: func() interface{} {
			w, err := gzip.NewWriterLevel(io.Discard, level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		},
	})
	return p.(*sync.Pool)
}

// gzipResponseWriter buffers up to MinSize bytes, then decides whether to
// compress based on size and Content-Type.
type gzipResponseWriter struct {
	http.ResponseWriter
	gzipWriter *gzip.Writer
	pool       *sync.Pool
	config     CompressionConfig
	buffer     []byte
	statusCode int
	decided    bool
	compress   bool
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		pool:           gzipPool(config.Level),
		config:         config,
		statusCode:     http.StatusOK,
		buffer:         make([]byte, 0, config.MinSize+1),
	}
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.decided {
		return
	}
	g.statusCode = statusCode
	// Bodyless statuses are passed straight through.
	if statusCode == http.StatusNoContent || statusCode == http.StatusNotModified {
		g.decide()
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.compress {
			return g.gzipWriter.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	if g.Header().Get("Content-Encoding") != "" {
		return false
	}
	contentType := g.Header().Get("Content-Type")
	if contentType == "" {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide writes the status line and any buffered bytes.
func (g *gzipResponseWriter) decide() error {
	if g.decided {
		return nil
	}
	g.decided = true
	g.compress = len(g.buffer) >= g.config.MinSize && g.compressible()

	var err error
	if g.compress {
		g.Header().Del("Content-Length")
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Add("Vary", "Accept-Encoding")

		g.gzipWriter = g.pool.Get().(*gzip.Writer)
		g.gzipWriter.Reset(g.ResponseWriter)

		g.ResponseWriter.WriteHeader(g.statusCode)
		_, err = g.gzipWriter.Write(g.buffer)
	} else {
		g.ResponseWriter.WriteHeader(g.statusCode)
		if len(g.buffer) > 0 {
			_, err = g.ResponseWriter.Write(g.buffer)
		}
	}
	g.buffer = nil
	return err
}

// Close flushes buffered output and returns the gzip writer to its pool.
func (g *gzipResponseWriter) Close() error {
	if err := g.decide(); err != nil {
		return err
	}
	if g.gzipWriter != nil {
		err := g.gzipWriter.Close()
		g.pool.Put(g.gzipWriter)
		g.gzipWriter = nil
		return err
	}
	return nil
}

func (g *gzipResponseWriter) Flush() {
	g.decide()
	if g.gzipWriter != nil {
		g.gzipWriter.Flush()
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Compression returns a middleware that gzips JSON responses. Range
// requests and HEAD requests pass through untouched.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				r.Header.Get("Range") != "" ||
				r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer gzw.Close()

			next.ServeHTTP(gzw, r)
		})
	}
}
