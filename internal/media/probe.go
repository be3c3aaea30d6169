package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Image decoders registered for header-only probing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-library/internal/apperr"
	"media-library/internal/filesystem"
	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
)

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 30 * time.Second

// Metadata is what a probe learns about a stored file.
type Metadata struct {
	ContentType    string
	Kind           mediatypes.Kind
	Width          int
	Height         int
	DurationMillis *int64
}

// Prober extracts metadata from images and videos.
type Prober struct {
	binary  string
	timeout time.Duration
	retry   filesystem.RetryConfig
	log     *logging.Logger
}

// NewProber creates a Prober that runs the given ffprobe binary for videos.
// An empty binary means "ffprobe" from PATH; a non-positive timeout selects
// DefaultProbeTimeout.
func NewProber(binary string, timeout time.Duration) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{
		binary:  binary,
		timeout: timeout,
		retry:   filesystem.DefaultRetryConfig(),
		log:     logging.For("probe"),
	}
}

// Probe inspects the file at path. The kind and content type come from the
// extension; dimensions and duration come from the file itself.
func (p *Prober) Probe(ctx context.Context, path string) (Metadata, error) {
	ext := filepath.Ext(path)
	md := Metadata{
		ContentType: mediatypes.ContentType(ext),
		Kind:        mediatypes.KindOf(ext),
	}

	var err error
	switch md.Kind {
	case mediatypes.KindVideo:
		err = p.probeVideo(ctx, path, &md)
	case mediatypes.KindImage:
		err = p.probeImage(path, &md)
	default:
		err = apperr.Errorf(apperr.KindProbe, "media.Probe", "unsupported extension %q", ext)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ProbesTotal.WithLabelValues(string(md.Kind), status).Inc()
	return md, err
}

func (p *Prober) probeImage(path string, md *Metadata) error {
	const op = "media.probeImage"

	f, err := filesystem.OpenWithRetry(path, p.retry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.NotFound(op, err)
		}
		return apperr.E(apperr.KindProbe, op, err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			// No Go decoder for this format (heic and friends); keep zero dimensions.
			p.log.Debug("no decoder for %s, dimensions unknown", path)
			return nil
		}
		return apperr.E(apperr.KindProbe, op, fmt.Errorf("decode header of %s: %w", path, err))
	}

	p.log.Debug("probed %s image %s: %dx%d", format, path, cfg.Width, cfg.Height)
	md.Width = cfg.Width
	md.Height = cfg.Height
	return nil
}

func (p *Prober) probeVideo(ctx context.Context, path string, md *Metadata) error {
	const op = "media.probeVideo"

	if _, err := filesystem.StatWithRetry(path, p.retry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.NotFound(op, err)
		}
		return apperr.E(apperr.KindProbe, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	cmd.WaitDelay = time.Second

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return apperr.E(apperr.KindProbe, op, fmt.Errorf("ffprobe %s: %w", path, ctx.Err()))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return apperr.E(apperr.KindProbe, op, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr))))
		}
		return apperr.E(apperr.KindProbe, op, fmt.Errorf("ffprobe %s: %w", path, err))
	}

	result, err := parseFFProbe(output)
	if err != nil {
		return apperr.E(apperr.KindProbe, op, err)
	}

	md.Width, md.Height = result.dimensions()
	md.DurationMillis = result.durationMillis()
	return nil
}

type ffprobeResult struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string            `json:"codec_type"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Duration  string            `json:"duration"`
	Tags      map[string]string `json:"tags"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func parseFFProbe(output []byte) (ffprobeResult, error) {
	var result ffprobeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ffprobeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	if result.videoStream() == nil {
		return ffprobeResult{}, errors.New("ffprobe parse: no video stream")
	}
	return result, nil
}

func (r ffprobeResult) videoStream() *ffprobeStream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, "video") {
			return &r.Streams[i]
		}
	}
	return nil
}

// dimensions reports display dimensions, swapping for 90/270 degree rotation.
func (r ffprobeResult) dimensions() (int, int) {
	s := r.videoStream()
	if s == nil {
		return 0, 0
	}
	switch strings.TrimPrefix(s.Tags["rotate"], "-") {
	case "90", "270":
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// durationMillis prefers the container duration and falls back to the
// video stream's. Nil when neither is usable.
func (r ffprobeResult) durationMillis() *int64 {
	seconds := parseSeconds(r.Format.Duration)
	if seconds <= 0 {
		if s := r.videoStream(); s != nil {
			seconds = parseSeconds(s.Duration)
		}
	}
	if seconds <= 0 {
		return nil
	}
	ms := int64(math.Round(seconds * 1000))
	return &ms
}

func parseSeconds(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
