package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"media-library/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The remainder covers ffmpeg and ffprobe children, SQLite page cache
// and goroutine stacks.
const DefaultMemoryRatio = 0.75

// Sources reported in Limits.Source.
const (
	SourceGoMemLimit  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// Limits describes the heap limit chosen at startup.
type Limits struct {
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configured reports whether a heap limit is in effect.
func (l Limits) Configured() bool {
	return l.GoMemLimit > 0
}

// ConfigureFromEnv applies a heap limit derived from the environment and
// returns what was chosen. Call it before the catalog is opened.
//
//   - GOMEMLIMIT: honoured as-is when set
//   - MEMORY_LIMIT: container limit, in bytes or as a quantity such as 512Mi
//   - MEMORY_RATIO: share of MEMORY_LIMIT for the heap (default 0.75)
func ConfigureFromEnv() Limits {
	limits, warnings := resolve(os.Getenv)
	for _, w := range warnings {
		logging.Warn("%s", w)
	}

	switch limits.Source {
	case SourceGoMemLimit:
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			limits.GoMemLimit = current
		}
		logging.Info("GOMEMLIMIT set via environment: %s", formatBytes(limits.GoMemLimit))
	case SourceMemoryLimit:
		debug.SetMemoryLimit(limits.GoMemLimit)
		logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
			formatBytes(limits.GoMemLimit), limits.Ratio*100, formatBytes(limits.ContainerLimit))
	default:
		logging.Debug("No memory limit configured, heap is unbounded")
	}
	return limits
}

// resolve computes limits from getenv without touching the runtime.
func resolve(getenv func(string) string) (Limits, []string) {
	if strings.TrimSpace(getenv("GOMEMLIMIT")) != "" {
		return Limits{Source: SourceGoMemLimit}, nil
	}

	raw := strings.TrimSpace(getenv("MEMORY_LIMIT"))
	if raw == "" {
		return Limits{Source: SourceNone}, nil
	}

	var warnings []string
	containerLimit, err := parseQuantity(raw)
	if err != nil {
		return Limits{Source: SourceNone}, []string{fmt.Sprintf("Ignoring MEMORY_LIMIT %q: %v", raw, err)}
	}

	ratio := DefaultMemoryRatio
	if s := strings.TrimSpace(getenv("MEMORY_RATIO")); s != "" {
		parsed, err := strconv.ParseFloat(s, 64)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("Invalid MEMORY_RATIO %q, using %.2f", s, DefaultMemoryRatio))
		case parsed <= 0 || parsed > 1:
			warnings = append(warnings, fmt.Sprintf("MEMORY_RATIO %q out of range (0, 1], using %.2f", s, DefaultMemoryRatio))
		default:
			ratio = parsed
		}
	}

	return Limits{
		Source:         SourceMemoryLimit,
		ContainerLimit: containerLimit,
		GoMemLimit:     int64(float64(containerLimit) * ratio),
		Ratio:          ratio,
	}, warnings
}

var quantitySuffixes = []struct {
	suffix string
	factor int64
}{
	{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30}, {"Ti", 1 << 40},
	{"K", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
}

// parseQuantity accepts a plain byte count or a Kubernetes-style quantity
// with a binary (Mi, Gi) or decimal (M, G) suffix.
func parseQuantity(s string) (int64, error) {
	factor := int64(1)
	for _, q := range quantitySuffixes {
		if strings.HasSuffix(s, q.suffix) {
			factor = q.factor
			s = strings.TrimSuffix(s, q.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a byte quantity")
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	if n > math.MaxInt64/factor {
		return 0, fmt.Errorf("too large")
	}
	return n * factor, nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
