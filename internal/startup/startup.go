package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/workers"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Defaults for environment variables.
const (
	defaultReconcileInterval = 30 * time.Minute
	defaultPollInterval      = 30 * time.Second
	defaultSnapshotTimeout   = 60 * time.Second
	defaultSnapshotWidth     = 320
	defaultProbeTimeout      = 30 * time.Second
	defaultContentKeyTTL     = 2 * time.Minute
	maxSnapshotWorkers       = 8
)

// Config holds all application configuration
type Config struct {
	StorageRoot string
	DatabaseDir string
	Port        string
	MetricsPort string

	ReconcileInterval time.Duration
	PollInterval      time.Duration
	OwnerWorkers      int // 0 leaves the scheduler default

	SnapshotWorkers int
	SnapshotTimeout time.Duration
	SnapshotWidth   int
	ProbeTimeout    time.Duration
	FFmpegPath      string
	FFprobePath     string

	ContentKeyTTL time.Duration

	LogContent      bool
	LogHealthChecks bool
	MetricsEnabled  bool

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("  STORAGE_ROOT:        %s", config.StorageRoot)
	logging.Info("  DATABASE_DIR:        %s", config.DatabaseDir)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_PORT:        %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  RECONCILE_INTERVAL:  %s", intervalString(config.ReconcileInterval))
	logging.Info("  POLL_INTERVAL:       %s", intervalString(config.PollInterval))
	logging.Info("  OWNER_WORKERS:       %s", workersString(config.OwnerWorkers))
	logging.Info("  SNAPSHOT_WORKERS:    %d", config.SnapshotWorkers)
	logging.Info("  SNAPSHOT_TIMEOUT:    %s", config.SnapshotTimeout)
	logging.Info("  SNAPSHOT_WIDTH:      %d", config.SnapshotWidth)
	logging.Info("  PROBE_TIMEOUT:       %s", config.ProbeTimeout)
	logging.Info("  CONTENT_KEY_TTL:     %s", config.ContentKeyTTL)
	logging.Info("  LOG_CONTENT:         %v", config.LogContent)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Storage root (absolute):       %s", config.StorageRoot)
	logging.Info("  Database directory (absolute): %s", config.DatabaseDir)

	// The storage root is required: every owner's media lives under it.
	if err := ensureDirectory(config.StorageRoot, "storage"); err != nil {
		return nil, fmt.Errorf("storage root error: %w", err)
	}
	if err := testWriteAccess(config.StorageRoot); err != nil {
		return nil, fmt.Errorf("storage root is not writable (required for snapshots and locks): %w", err)
	}
	logging.Info("  [OK] Storage root is writable")

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	return config, nil
}

// configFromEnv reads the environment without touching the filesystem.
func configFromEnv() (*Config, error) {
	storageRoot, err := filepath.Abs(getEnv("STORAGE_ROOT", "/data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root path: %w", err)
	}
	databaseDir, err := filepath.Abs(getEnv("DATABASE_DIR", "/database"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	return &Config{
		StorageRoot:       storageRoot,
		DatabaseDir:       databaseDir,
		Port:              getEnv("PORT", "8080"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", defaultReconcileInterval),
		PollInterval:      getEnvDuration("POLL_INTERVAL", defaultPollInterval),
		OwnerWorkers:      getEnvInt("OWNER_WORKERS", 0),
		SnapshotWorkers:   workers.ForCPU(maxSnapshotWorkers),
		SnapshotTimeout:   getEnvDuration("SNAPSHOT_TIMEOUT", defaultSnapshotTimeout),
		SnapshotWidth:     getEnvInt("SNAPSHOT_WIDTH", defaultSnapshotWidth),
		ProbeTimeout:      getEnvDuration("PROBE_TIMEOUT", defaultProbeTimeout),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:       getEnv("FFPROBE_PATH", "ffprobe"),
		ContentKeyTTL:     getEnvDuration("CONTENT_KEY_TTL", defaultContentKeyTTL),
		LogContent:        getEnvBool("LOG_CONTENT", false),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", true),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		DatabasePath:      filepath.Join(databaseDir, "media-library.db"),
	}, nil
}

func workersString(n int) string {
	if n <= 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func intervalString(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	return d.String()
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogMediaToolsInit checks that ffmpeg and ffprobe are runnable. Images
// work without them; videos are skipped by reconciliation until they exist.
func LogMediaToolsInit(config *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEDIA TOOLS")
	logging.Info("------------------------------------------------------------")

	for _, tool := range []struct{ name, binary string }{
		{"FFmpeg", config.FFmpegPath},
		{"FFprobe", config.FFprobePath},
	} {
		if err := checkTool(tool.binary); err != nil {
			logging.Warn("  %s check failed: %v", tool.name, err)
			logging.Warn("  Videos will be skipped until %s is available", tool.binary)
			continue
		}
		logging.Info("  [OK] %s is available", tool.name)
	}
	logging.Info("  Snapshot workers: %d, timeout %v, width %dpx",
		config.SnapshotWorkers, config.SnapshotTimeout, config.SnapshotWidth)
	logging.Info("  Images: %s", strings.Join(mediatypes.Extensions(mediatypes.KindImage), " "))
	logging.Info("  Videos: %s", strings.Join(mediatypes.Extensions(mediatypes.KindVideo), " "))
}

// LogSchedulerInit logs scheduler initialization
func LogSchedulerInit(interval, poll time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SCHEDULER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Reconcile interval: %s", intervalString(interval))
	logging.Info("  Poll interval:      %s", intervalString(poll))
	logging.Info("  Starting scheduler...")
}

// LogSchedulerStarted logs successful scheduler start
func LogSchedulerStarted() {
	logging.Info("  [OK] Scheduler started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Subrouter prefixes carry no methods
			return nil
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes
func LogHTTPRoutes(router *mux.Router, logContent, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logContent {
		logging.Info("    Content request logging: ON")
	} else {
		logging.Info("    Content request logging: OFF (set LOG_CONTENT=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
  media-library
  per-owner media catalog and reconciliation server
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if name == "storage" && logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			owners := 0
			for _, e := range entries {
				if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
					owners++
				}
			}
			logging.Debug("    Contents: %d owner directories", owners)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// checkTool verifies binary is on PATH and answers -version.
func checkTool(binary string) error {
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", binary)
	}
	logging.Debug("  %s path: %s", binary, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", binary, err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", binary, strings.TrimSpace(line))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses a duration. "0" is accepted and disables intervals.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
