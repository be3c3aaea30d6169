package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"STORAGE_ROOT", "DATABASE_DIR", "PORT", "METRICS_PORT", "METRICS_ENABLED",
		"RECONCILE_INTERVAL", "POLL_INTERVAL", "SNAPSHOT_WORKERS", "SNAPSHOT_TIMEOUT",
		"SNAPSHOT_WIDTH", "PROBE_TIMEOUT", "CONTENT_KEY_TTL", "LOG_CONTENT",
		"LOG_HEALTH_CHECKS", "FFMPEG_PATH", "FFPROBE_PATH", "OWNER_WORKERS",
	} {
		t.Setenv(key, "")
	}

	config, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() error: %v", err)
	}

	if config.StorageRoot != filepath.Clean("/data") || config.DatabaseDir != filepath.Clean("/database") {
		t.Errorf("unexpected dirs %s, %s", config.StorageRoot, config.DatabaseDir)
	}
	if config.Port != "8080" || config.MetricsPort != "9090" {
		t.Errorf("unexpected ports %s, %s", config.Port, config.MetricsPort)
	}
	if config.ReconcileInterval != 30*time.Minute || config.PollInterval != 30*time.Second {
		t.Errorf("unexpected intervals %v, %v", config.ReconcileInterval, config.PollInterval)
	}
	if config.SnapshotTimeout != time.Minute || config.SnapshotWidth != 320 || config.ProbeTimeout != 30*time.Second {
		t.Errorf("unexpected snapshot settings %+v", config)
	}
	if config.ContentKeyTTL != 2*time.Minute {
		t.Errorf("ContentKeyTTL = %v", config.ContentKeyTTL)
	}
	if config.OwnerWorkers != 0 {
		t.Errorf("OwnerWorkers = %d, want 0 (scheduler default)", config.OwnerWorkers)
	}
	if config.SnapshotWorkers < 1 || config.SnapshotWorkers > maxSnapshotWorkers {
		t.Errorf("SnapshotWorkers = %d", config.SnapshotWorkers)
	}
	if !config.MetricsEnabled || !config.LogHealthChecks || config.LogContent {
		t.Errorf("unexpected flags %+v", config)
	}
	if config.FFmpegPath != "ffmpeg" || config.FFprobePath != "ffprobe" {
		t.Errorf("unexpected tools %s, %s", config.FFmpegPath, config.FFprobePath)
	}
	if config.DatabasePath != filepath.Join(config.DatabaseDir, "media-library.db") {
		t.Errorf("DatabasePath = %s", config.DatabasePath)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	root := t.TempDir()
	t.Setenv("STORAGE_ROOT", root)
	t.Setenv("RECONCILE_INTERVAL", "0")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("SNAPSHOT_WORKERS", "3")
	t.Setenv("OWNER_WORKERS", "4")
	t.Setenv("SNAPSHOT_WIDTH", "not-a-number")
	t.Setenv("CONTENT_KEY_TTL", "-1m")
	t.Setenv("METRICS_ENABLED", "false")

	config, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() error: %v", err)
	}

	if config.StorageRoot != root {
		t.Errorf("StorageRoot = %s, want %s", config.StorageRoot, root)
	}
	if config.ReconcileInterval != 0 {
		t.Errorf("RECONCILE_INTERVAL=0 should disable sweeps, got %v", config.ReconcileInterval)
	}
	if config.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v", config.PollInterval)
	}
	if config.SnapshotWorkers != 3 {
		t.Errorf("SnapshotWorkers = %d, want 3", config.SnapshotWorkers)
	}
	if config.OwnerWorkers != 4 {
		t.Errorf("OwnerWorkers = %d, want 4", config.OwnerWorkers)
	}
	if config.SnapshotWidth != defaultSnapshotWidth {
		t.Errorf("invalid width should fall back to default, got %d", config.SnapshotWidth)
	}
	if config.ContentKeyTTL != defaultContentKeyTTL {
		t.Errorf("negative TTL should fall back to default, got %v", config.ContentKeyTTL)
	}
	if config.MetricsEnabled {
		t.Error("MetricsEnabled should be false")
	}
}

func TestLoadConfigCreatesDirectories(t *testing.T) {
	base := t.TempDir()
	t.Setenv("STORAGE_ROOT", filepath.Join(base, "data"))
	t.Setenv("DATABASE_DIR", filepath.Join(base, "db"))

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	for _, dir := range []string{config.StorageRoot, config.DatabaseDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", dir, err)
		}
	}
}

func TestLoadConfigRejectsFileAsStorageRoot(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STORAGE_ROOT", file)
	t.Setenv("DATABASE_DIR", filepath.Join(base, "db"))

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for a storage root that is a file")
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.HandleFunc("/health", noop).Methods("GET")
	api := r.PathPrefix("/api/albums").Subrouter()
	api.HandleFunc("/{id}", noop).Methods("GET", "PUT")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error: %v", err)
	}

	want := map[string]bool{
		"GET /health":          true,
		"GET /api/albums/{id}": true,
		"PUT /api/albums/{id}": true,
	}
	if len(routes) != len(want) {
		t.Fatalf("got %d routes, want %d: %+v", len(routes), len(want), routes)
	}
	for _, route := range routes {
		if !want[route.Method+" "+route.Path] {
			t.Errorf("unexpected route %s %s", route.Method, route.Path)
		}
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "health"},
		{"/api/media/{id}", "api/media"},
		{"/api/albums", "api/albums"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIntervalString(t *testing.T) {
	if got := intervalString(0); got != "disabled" {
		t.Errorf("intervalString(0) = %q", got)
	}
	if got := intervalString(90 * time.Second); got != "1m30s" {
		t.Errorf("intervalString(90s) = %q", got)
	}
}
