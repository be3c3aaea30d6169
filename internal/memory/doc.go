// Package memory bounds the server's heap inside a container.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT, which is usually
// filled from the container's memory limit through the Kubernetes Downward
// API:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// Only a share of the limit (MEMORY_RATIO, default 0.75) goes to the Go
// heap. Snapshot extraction runs in ffmpeg child processes whose memory the
// Go runtime does not see.
//
// A [Monitor] samples heap usage against the same limit. While usage is
// above the pause threshold the scheduler does not start passes for further
// owners; passes already running are left to finish.
package memory
