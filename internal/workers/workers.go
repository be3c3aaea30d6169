package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that pins the encoder pool size.
const OverrideEnv = "SNAPSHOT_WORKERS"

// Count returns a worker count derived from GOMAXPROCS, which Go sets from
// container CPU limits.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (external encoders)
//   - 2.0 for I/O-bound tasks (hashing over NFS)
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit. A positive SNAPSHOT_WORKERS value replaces the computed
// count but is still capped by limit.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capAt(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}

	return capAt(workers, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}
