package indexer

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"media-library/internal/logging"
	"media-library/internal/metrics"
	"media-library/internal/reconcile"
	"media-library/internal/workers"
)

const (
	// Default polling interval for change detection
	defaultPollInterval = 30 * time.Second

	// Upper bound on owners reconciled at once
	maxOwnerWorkers = 8
)

// Reconciler runs one reconciliation pass for an owner.
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID string) (*reconcile.Result, error)
}

// Throttle blocks new passes while the process is under memory pressure.
// WaitIfPaused returns false once the throttle has been stopped.
type Throttle interface {
	WaitIfPaused() bool
}

// OwnerSource enumerates owners and locates their media directories.
type OwnerSource interface {
	Owners() ([]string, error)
	MediaDir(ownerID string) string
}

// Indexer schedules reconciliation passes over every owner under the
// storage root: an initial sweep at startup, periodic sweeps, lightweight
// polling of owner directories, and manual triggers.
type Indexer struct {
	engine        Reconciler
	owners        OwnerSource
	indexInterval time.Duration
	pollInterval  time.Duration
	numWorkers    int
	throttle      Throttle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lifeMu orders wg.Add in spawn against Stop's wg.Wait.
	lifeMu  sync.Mutex
	stopped bool

	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	initialIndexComplete bool
	initialIndexError    error
	startTime            time.Time

	// Progress tracking
	ownersIndexed atomic.Int64
	filesSeen     atomic.Int64
	indexProgress atomic.Value

	// Callback when a sweep completes
	onIndexComplete func()

	// Last known media directory modification time per owner, and the
	// outcome of each owner's latest pass
	stateMu        sync.RWMutex
	ownerModTimes  map[string]time.Time
	ownersObserved map[string]bool
	ownerRunning   map[string]int
	ownerLastPass  map[string]time.Time
	ownerLastError map[string]string
}

// OwnerStatus reports scheduler state for one owner.
type OwnerStatus struct {
	Running   bool      `json:"running"`
	LastPass  time.Time `json:"lastPass,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// IndexProgress tracks the progress of the current sweep.
type IndexProgress struct {
	OwnersTotal   int64     `json:"ownersTotal"`
	OwnersIndexed int64     `json:"ownersIndexed"`
	FilesSeen     int64     `json:"filesSeen"`
	IsIndexing    bool      `json:"isIndexing"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool           `json:"ready"`
	Indexing          bool           `json:"indexing"`
	StartTime         time.Time      `json:"startTime"`
	Uptime            string         `json:"uptime"`
	LastIndexed       time.Time      `json:"lastIndexed,omitempty"`
	InitialIndexError string         `json:"initialIndexError,omitempty"`
	OwnersIndexed     int64          `json:"ownersIndexed"`
	FilesSeen         int64          `json:"filesSeen"`
	IndexProgress     *IndexProgress `json:"indexProgress,omitempty"`
}

// New creates an Indexer. An indexInterval of zero disables periodic sweeps.
func New(engine Reconciler, owners OwnerSource, indexInterval time.Duration) *Indexer {
	ctx, cancel := context.WithCancel(context.Background())
	idx := &Indexer{
		engine:         engine,
		owners:         owners,
		indexInterval:  indexInterval,
		pollInterval:   defaultPollInterval,
		numWorkers:     workers.ForIO(maxOwnerWorkers),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		ownerModTimes:  make(map[string]time.Time),
		ownersObserved: make(map[string]bool),
		ownerRunning:   make(map[string]int),
		ownerLastPass:  make(map[string]time.Time),
		ownerLastError: make(map[string]string),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx
}

// SetPollInterval sets the interval for polling-based change detection.
// Zero or negative disables polling.
func (idx *Indexer) SetPollInterval(interval time.Duration) {
	idx.pollInterval = interval
}

// SetWorkers sets how many owners are reconciled concurrently during a sweep.
func (idx *Indexer) SetWorkers(n int) {
	if n > 0 {
		idx.numWorkers = n
	}
}

// SetThrottle makes sweeps wait on t before starting each owner's pass.
func (idx *Indexer) SetThrottle(t Throttle) {
	idx.throttle = t
}

// SetOnIndexComplete sets a callback to be invoked when a sweep completes.
func (idx *Indexer) SetOnIndexComplete(callback func()) {
	idx.onIndexComplete = callback
}

// Start begins background scheduling.
func (idx *Indexer) Start() error {
	if !idx.spawn(func() {
		logging.Info("Starting initial reconciliation sweep in background...")
		if err := idx.Index(idx.ctx); err != nil {
			logging.Error("Initial sweep error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
	}) {
		return errors.New("indexer stopped")
	}

	if idx.pollInterval > 0 {
		idx.spawn(idx.pollForChanges)
	}

	if idx.indexInterval > 0 {
		idx.spawn(idx.periodicIndex)
	}

	return nil
}

// Stop cancels running passes and waits for background work to finish.
// Triggers after Stop are refused.
func (idx *Indexer) Stop() {
	idx.lifeMu.Lock()
	idx.stopped = true
	idx.cancel()
	idx.lifeMu.Unlock()

	idx.wg.Wait()
}

// spawn runs fn in a tracked goroutine unless the indexer is stopped.
func (idx *Indexer) spawn(fn func()) bool {
	idx.lifeMu.Lock()
	defer idx.lifeMu.Unlock()
	if idx.stopped {
		return false
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		fn()
	}()
	return true
}

// IsReady reports whether the initial sweep has finished.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

func (idx *Indexer) getProgress() IndexProgress {
	if progress, ok := idx.indexProgress.Load().(IndexProgress); ok {
		return progress
	}
	return IndexProgress{}
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:         idx.initialIndexComplete,
		Indexing:      idx.isIndexing,
		StartTime:     idx.startTime,
		Uptime:        time.Since(idx.startTime).String(),
		LastIndexed:   idx.lastIndexTime,
		OwnersIndexed: idx.ownersIndexed.Load(),
		FilesSeen:     idx.filesSeen.Load(),
	}

	if idx.isIndexing {
		progress := idx.getProgress()
		status.IndexProgress = &progress
	}

	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}

	return status
}

// Index runs one sweep: a reconciliation pass for every owner, several
// owners at a time. A sweep already in progress makes this a no-op.
// Failing owners do not stop the sweep; their errors are joined.
func (idx *Indexer) Index(ctx context.Context) error {
	if !idx.tryStartIndexing() {
		logging.Info("Sweep already in progress, skipping...")
		return nil
	}
	defer idx.finishIndexing()

	metrics.SchedulerIsRunning.Set(1)
	defer metrics.SchedulerIsRunning.Set(0)
	metrics.SchedulerRunsTotal.Inc()

	startTime := time.Now()

	owners, err := idx.owners.Owners()
	if err != nil {
		return err
	}

	logging.Info("Starting reconciliation sweep over %d owners", len(owners))
	idx.resetCounters(startTime, len(owners))

	errs := idx.runParallel(ctx, owners, func(ownerID string) error {
		_, err := idx.IndexOwner(ctx, ownerID)
		idx.ownersIndexed.Add(1)
		idx.updateProgress(startTime, len(owners))
		return err
	})

	idx.finalizeIndex(startTime, len(owners))
	return errors.Join(errs...)
}

// IndexOwner runs a single pass for one owner and records the state used
// by change detection.
func (idx *Indexer) IndexOwner(ctx context.Context, ownerID string) (*reconcile.Result, error) {
	modTime, statErr := idx.mediaDirModTime(ownerID)

	idx.markRunning(ownerID, 1)
	result, err := idx.engine.Reconcile(ctx, ownerID)
	idx.markRunning(ownerID, -1)

	idx.stateMu.Lock()
	if err != nil {
		idx.ownerLastError[ownerID] = err.Error()
		idx.stateMu.Unlock()
		logging.Error("reconciliation for %s failed: %v", ownerID, err)
		return result, err
	}
	delete(idx.ownerLastError, ownerID)
	idx.ownerLastPass[ownerID] = time.Now()
	idx.ownersObserved[ownerID] = true
	if statErr == nil {
		idx.ownerModTimes[ownerID] = modTime
	}
	idx.stateMu.Unlock()

	idx.filesSeen.Add(int64(len(result.Seen)))
	return result, nil
}

// TriggerIndex manually triggers a sweep in the background. It returns
// false once the indexer is stopped.
func (idx *Indexer) TriggerIndex() bool {
	return idx.spawn(func() {
		if err := idx.Index(idx.ctx); err != nil {
			logging.Error("manually triggered sweep failed: %v", err)
		}
	})
}

// TriggerOwner runs a pass for one owner in the background, detached from
// the caller's context. It returns false once the indexer is stopped.
func (idx *Indexer) TriggerOwner(ownerID string) bool {
	// Counted as running from the moment it is queued.
	idx.markRunning(ownerID, 1)

	started := idx.spawn(func() {
		_, err := idx.IndexOwner(idx.ctx, ownerID)
		idx.markRunning(ownerID, -1)
		if err != nil {
			logging.Warn("triggered pass for %s failed: %v", ownerID, err)
		}
	})
	if !started {
		idx.markRunning(ownerID, -1)
	}
	return started
}

func (idx *Indexer) markRunning(ownerID string, delta int) {
	idx.stateMu.Lock()
	defer idx.stateMu.Unlock()
	idx.ownerRunning[ownerID] += delta
	if idx.ownerRunning[ownerID] <= 0 {
		delete(idx.ownerRunning, ownerID)
	}
}

// OwnerStatus reports whether a pass for the owner is queued or running and
// how its latest pass ended.
func (idx *Indexer) OwnerStatus(ownerID string) OwnerStatus {
	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()
	return OwnerStatus{
		Running:   idx.ownerRunning[ownerID] > 0,
		LastPass:  idx.ownerLastPass[ownerID],
		LastError: idx.ownerLastError[ownerID],
	}
}

// IsIndexing returns whether a sweep is currently in progress.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// LastIndexTime returns the time of the last completed sweep.
func (idx *Indexer) LastIndexTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastIndexTime
}

// GetProgress returns the current sweep progress.
func (idx *Indexer) GetProgress() IndexProgress {
	return idx.getProgress()
}

func (idx *Indexer) pollForChanges() {
	// Wait for the initial sweep to complete
	for !idx.IsReady() {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-idx.ctx.Done():
			return
		}
	}

	logging.Info("Starting change detection polling (interval: %v)", idx.pollInterval)

	ticker := time.NewTicker(idx.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			changed, err := idx.detectChanges()
			if err != nil {
				logging.Error("Error detecting changes: %v", err)
				continue
			}
			if len(changed) == 0 {
				continue
			}
			logging.Info("Changes detected for %d owners, reconciling", len(changed))
			idx.runParallel(idx.ctx, changed, func(ownerID string) error {
				_, err := idx.IndexOwner(idx.ctx, ownerID)
				return err
			})
		case <-idx.ctx.Done():
			logging.Info("Change detection polling stopped")
			return
		}
	}
}

// detectChanges returns owners whose media directory is new or has a newer
// modification time than at the start of their last successful pass.
// Renames, additions and deletions touch the directory; in-place content
// changes are left to the periodic sweep.
func (idx *Indexer) detectChanges() ([]string, error) {
	metrics.SchedulerPollChecksTotal.Inc()

	owners, err := idx.owners.Owners()
	if err != nil {
		return nil, err
	}

	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()

	var changed []string
	for _, ownerID := range owners {
		if !idx.ownersObserved[ownerID] {
			logging.Debug("New owner detected: %s", ownerID)
			changed = append(changed, ownerID)
			continue
		}
		modTime, err := idx.mediaDirModTime(ownerID)
		if err != nil {
			continue
		}
		last, ok := idx.ownerModTimes[ownerID]
		if !ok || modTime.After(last) {
			logging.Debug("Media directory of %s modified: %v > %v", ownerID, modTime, last)
			changed = append(changed, ownerID)
		}
	}

	metrics.SchedulerPollChangesDetected.Add(float64(len(changed)))
	return changed, nil
}

func (idx *Indexer) mediaDirModTime(ownerID string) (time.Time, error) {
	info, err := os.Stat(idx.owners.MediaDir(ownerID))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (idx *Indexer) periodicIndex() {
	ticker := time.NewTicker(idx.indexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic sweep triggered")
			if err := idx.Index(idx.ctx); err != nil {
				logging.Error("periodic sweep failed: %v", err)
			}
		case <-idx.ctx.Done():
			return
		}
	}
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialIndexComplete = true
}

func (idx *Indexer) resetCounters(startTime time.Time, total int) {
	idx.ownersIndexed.Store(0)
	idx.filesSeen.Store(0)
	idx.indexProgress.Store(IndexProgress{
		OwnersTotal: int64(total),
		IsIndexing:  true,
		StartedAt:   startTime,
	})
}

func (idx *Indexer) updateProgress(startTime time.Time, total int) {
	idx.indexProgress.Store(IndexProgress{
		OwnersTotal:   int64(total),
		OwnersIndexed: idx.ownersIndexed.Load(),
		FilesSeen:     idx.filesSeen.Load(),
		IsIndexing:    true,
		StartedAt:     startTime,
	})
}

func (idx *Indexer) finalizeIndex(startTime time.Time, total int) {
	duration := time.Since(startTime)

	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.indexMu.Unlock()

	idx.indexProgress.Store(IndexProgress{
		OwnersTotal:   int64(total),
		OwnersIndexed: idx.ownersIndexed.Load(),
		FilesSeen:     idx.filesSeen.Load(),
		IsIndexing:    false,
	})

	metrics.SchedulerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.SchedulerLastRunDuration.Set(duration.Seconds())

	logging.Info("Sweep complete: %d owners, %d files in %v", idx.ownersIndexed.Load(), idx.filesSeen.Load(), duration)

	if idx.onIndexComplete != nil {
		idx.onIndexComplete()
	}
}
