package handlers

import (
	"net/http"
	"runtime"

	"media-library/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Reconciling       bool   `json:"reconciling"`
	LastReconciled    string `json:"lastReconciled,omitempty"`
	InitialSweepError string `json:"initialSweepError,omitempty"`

	// Progress info
	OwnersReconciled int64 `json:"ownersReconciled"`
	FilesSeen        int64 `json:"filesSeen"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	healthStatus := h.scheduler.GetHealthStatus()

	response := HealthResponse{
		Ready:            healthStatus.Ready,
		Version:          startup.Version,
		Uptime:           healthStatus.Uptime,
		Reconciling:      healthStatus.Indexing,
		OwnersReconciled: healthStatus.OwnersIndexed,
		FilesSeen:        healthStatus.FilesSeen,
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		NumGoroutine:     runtime.NumGoroutine(),
	}

	if healthStatus.Ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	if !healthStatus.LastIndexed.IsZero() {
		response.LastReconciled = healthStatus.LastIndexed.Format("2006-01-02T15:04:05Z07:00")
	}

	if healthStatus.InitialIndexError != "" {
		response.InitialSweepError = healthStatus.InitialIndexError
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")

	// Return 503 only if not ready at all
	if !healthStatus.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the initial sweep has finished
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.scheduler.IsReady() {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}
