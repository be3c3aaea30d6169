package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	atomicfile "github.com/natefinch/atomic"
	"golang.org/x/sync/semaphore"

	"media-library/internal/apperr"
	"media-library/internal/logging"
	"media-library/internal/metrics"
	"media-library/internal/workers"
)

const (
	// DefaultSnapshotTimeout bounds one frame extraction.
	DefaultSnapshotTimeout = 60 * time.Second
	// DefaultSnapshotWidth is the width snapshots are scaled to.
	DefaultSnapshotWidth = 320
	// snapshotQuality is the JPEG quality of written snapshots.
	snapshotQuality = 80
	// sampleFraction is where in the video the frame is taken.
	sampleFraction = 0.25
)

// FrameExtractor pulls a single decoded frame out of a video.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, src string, at time.Duration) (image.Image, error)
}

// FFmpegExtractor extracts frames by piping a PNG out of ffmpeg.
type FFmpegExtractor struct {
	Binary string
}

// ExtractFrame runs ffmpeg seeking to at and decodes the first frame it emits.
// Cancelling ctx kills the process.
func (e FFmpegExtractor) ExtractFrame(ctx context.Context, src string, at time.Duration) (image.Image, error) {
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", src)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// SnapshotConfig configures a SnapshotGenerator. Zero values select defaults.
type SnapshotConfig struct {
	Workers   int
	Timeout   time.Duration
	Width     int
	Extractor FrameExtractor
}

// SnapshotGenerator renders preview stills for videos. At most Workers
// extractions run at once across every caller sharing the generator.
type SnapshotGenerator struct {
	sem       *semaphore.Weighted
	limit     int
	inFlight  atomic.Int64
	timeout   time.Duration
	width     int
	extractor FrameExtractor
	log       *logging.Logger
}

// NewSnapshotGenerator creates a generator from cfg.
func NewSnapshotGenerator(cfg SnapshotConfig) *SnapshotGenerator {
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForCPU(4)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSnapshotTimeout
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultSnapshotWidth
	}
	if cfg.Extractor == nil {
		cfg.Extractor = FFmpegExtractor{}
	}

	return &SnapshotGenerator{
		sem:       semaphore.NewWeighted(int64(cfg.Workers)),
		limit:     cfg.Workers,
		timeout:   cfg.Timeout,
		width:     cfg.Width,
		extractor: cfg.Extractor,
		log:       logging.For("snapshot"),
	}
}

// Limit returns the maximum number of concurrent extractions.
func (g *SnapshotGenerator) Limit() int {
	return g.limit
}

// InFlight returns the number of extractions currently running.
func (g *SnapshotGenerator) InFlight() int {
	return int(g.inFlight.Load())
}

// SampleOffset returns where a frame is taken for a video of the given length.
func SampleOffset(durationMillis int64) time.Duration {
	if durationMillis <= 0 {
		return 0
	}
	return time.Duration(float64(durationMillis)*sampleFraction) * time.Millisecond
}

// Generate extracts a frame from src, scales it to the configured width and
// writes it to dst as JPEG, replacing any existing file. It waits for a free
// slot first; ctx cancellation ends the wait.
func (g *SnapshotGenerator) Generate(ctx context.Context, src, dst string, durationMillis int64) error {
	const op = "media.Snapshot"

	waitStart := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	metrics.SnapshotSlotWait.Observe(time.Since(waitStart).Seconds())

	g.inFlight.Add(1)
	metrics.SnapshotsInFlight.Inc()
	defer func() {
		g.inFlight.Add(-1)
		metrics.SnapshotsInFlight.Dec()
	}()

	start := time.Now()
	err := g.render(ctx, src, dst, durationMillis)
	metrics.SnapshotGenerationDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.SnapshotGenerationsTotal.WithLabelValues("success").Inc()
		g.log.Debug("wrote %s from %s in %v", dst, src, time.Since(start))
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		metrics.SnapshotGenerationsTotal.WithLabelValues("timeout").Inc()
		return apperr.E(apperr.KindEncode, op, fmt.Errorf("snapshot of %s timed out after %v", src, g.timeout))
	default:
		metrics.SnapshotGenerationsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.E(apperr.KindEncode, op, err)
	}
}

func (g *SnapshotGenerator) render(ctx context.Context, src, dst string, durationMillis int64) error {
	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	frame, err := g.extractor.ExtractFrame(tctx, src, SampleOffset(durationMillis))
	if err != nil {
		if tctx.Err() != nil {
			return tctx.Err()
		}
		return err
	}

	scaled := imaging.Resize(frame, g.width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: snapshotQuality}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := atomicfile.WriteFile(dst, &buf); err != nil {
		return fmt.Errorf("write snapshot %s: %w", dst, err)
	}
	return nil
}
