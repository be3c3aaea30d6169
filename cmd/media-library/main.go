package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-library/internal/access"
	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/handlers"
	"media-library/internal/indexer"
	"media-library/internal/library"
	"media-library/internal/logging"
	"media-library/internal/media"
	"media-library/internal/memory"
	"media-library/internal/metrics"
	"media-library/internal/middleware"
	"media-library/internal/reconcile"
	"media-library/internal/startup"
	"media-library/internal/storage"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout     = 30 * time.Second
	dbMetricsInterval   = time.Minute
	readHeaderTimeout   = 10 * time.Second
	idleTimeout         = 60 * time.Second
	metricsReadTimeout  = 5 * time.Second
	metricsWriteTimeout = 10 * time.Second
)

func main() {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"media":    config.StorageRoot,
		"database": config.DatabaseDir,
	}))

	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	metrics.InitializeMetrics()

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	startup.LogMediaToolsInit(config)
	layout := storage.New(config.StorageRoot)
	snapshots := media.NewSnapshotGenerator(media.SnapshotConfig{
		Workers:   config.SnapshotWorkers,
		Timeout:   config.SnapshotTimeout,
		Width:     config.SnapshotWidth,
		Extractor: media.FFmpegExtractor{Binary: config.FFmpegPath},
	})
	engine := reconcile.New(db, media.NewHasher(), media.NewProber(config.FFprobePath, config.ProbeTimeout), snapshots, layout)

	startup.LogSchedulerInit(config.ReconcileInterval, config.PollInterval)
	idx := indexer.New(engine, layout, config.ReconcileInterval)
	idx.SetPollInterval(config.PollInterval)
	idx.SetWorkers(config.OwnerWorkers)
	idx.SetOnIndexComplete(db.UpdateDBMetrics)
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	idx.SetThrottle(monitor)
	if err := idx.Start(); err != nil {
		logging.Error("Failed to start scheduler: %v", err)
	}
	startup.LogSchedulerStarted()

	keys := access.NewKeyStore(config.ContentKeyTTL)
	svc := library.New(db, snapshots, layout)
	h := handlers.New(svc, keys, idx)

	router := h.Router()
	startup.LogHTTPRoutes(router, config.LogContent, config.LogHealthChecks)
	handler := wrapMiddleware(router, config)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		// Content streams can run long; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  idleTimeout,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go runMaintenance(bgCtx, db, keys)
	go sweepOnHangup(bgCtx, idx)

	shutdownDone := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, idx, monitor, stopBackground)
		close(shutdownDone)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	<-shutdownDone
	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}
	startup.LogShutdownComplete()
}

// wrapMiddleware installs middleware. Metrics go on the router so the
// matched route template is known; the rest wrap the whole handler.
func wrapMiddleware(router *mux.Router, config *startup.Config) http.Handler {
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogContent = config.LogContent
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	var handler http.Handler = router
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	return middleware.RequestID()(handler)
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  metricsReadTimeout,
		WriteTimeout: metricsWriteTimeout,
	}
}

// runMaintenance prunes expired content keys and refreshes catalog gauges.
func runMaintenance(ctx context.Context, db *database.Database, keys *access.KeyStore) {
	pruneTicker := time.NewTicker(keys.TTL())
	defer pruneTicker.Stop()
	dbTicker := time.NewTicker(dbMetricsInterval)
	defer dbTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			if n := keys.Prune(); n > 0 {
				logging.Debug("pruned content keys for %d owners", n)
			}
		case <-dbTicker.C:
			db.UpdateDBMetrics()
		}
	}
}

// sweepOnHangup starts a full sweep on each SIGHUP.
func sweepOnHangup(ctx context.Context, idx *indexer.Indexer) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logging.Info("SIGHUP received, starting a full sweep")
			if !idx.TriggerIndex() {
				return
			}
		}
	}
}

func handleShutdown(srv, metricsSrv *http.Server, idx *indexer.Indexer, monitor *memory.Monitor, stopBackground context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	// In-flight passes are cancelled; snapshot processes are killed and
	// their partial files discarded.
	startup.LogShutdownStep("Stopping scheduler")
	monitor.Stop()
	idx.Stop()
	startup.LogShutdownStepComplete("Scheduler stopped")

	stopBackground()

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}
}
