package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"media-library/internal/apperr"
	"media-library/internal/database"
	"media-library/internal/filesystem"
	"media-library/internal/logging"
	"media-library/internal/media"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
	"media-library/internal/storage"
)

// Catalog is the subset of the media catalog reconciliation needs.
type Catalog interface {
	FindByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*database.MediaObject, error)
	Upsert(ctx context.Context, m *database.MediaObject) error
	Query(ctx context.Context, f database.Filter) ([]database.MediaObject, error)
	Remove(ctx context.Context, ids []string) (int64, error)
	SetLastReconcile(ctx context.Context, ownerID string, t time.Time) error
}

// Hasher computes content digests.
type Hasher interface {
	Hash(ctx context.Context, path string) (string, error)
}

// Prober extracts media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Metadata, error)
}

// Snapshotter renders video snapshots.
type Snapshotter interface {
	Generate(ctx context.Context, src, dst string, durationMillis int64) error
}

// Outcome classifies what a pass did with one file.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRenamed   Outcome = "renamed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// Result summarizes one reconciliation pass over one owner.
type Result struct {
	OwnerID    string        `json:"ownerId"`
	Seen       []string      `json:"seen"`
	Created    int           `json:"created"`
	Unchanged  int           `json:"unchanged"`
	Renamed    int           `json:"renamed"`
	Duplicates int           `json:"duplicates"`
	Skipped    int           `json:"skipped"`
	Removed    int           `json:"removed"`
	Duration   time.Duration `json:"duration"`
}

// Changed reports whether the pass mutated the catalog or the disk.
func (r *Result) Changed() bool {
	return r.Created+r.Renamed+r.Duplicates+r.Removed > 0
}

func (r *Result) count(o Outcome) {
	switch o {
	case OutcomeCreated:
		r.Created++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeRenamed:
		r.Renamed++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// fileResult is the classification of one file.
type fileResult struct {
	outcome Outcome
	// id is the catalog record the file corresponds to, if any.
	id string
	// failed marks the file name as not processed this pass.
	failed bool
	// catalogErr is set when the catalog itself failed.
	catalogErr error
}

// Engine keeps an owner's catalog in step with their media directory.
type Engine struct {
	catalog   Catalog
	hasher    Hasher
	prober    Prober
	snapshots Snapshotter
	layout    storage.Layout
	locks     *OwnerLocks
	log       *logging.Logger
}

// New creates an Engine. Passes for one owner are serialized in-process
// and, through a lock file in the owner directory, across processes.
func New(catalog Catalog, hasher Hasher, prober Prober, snapshots Snapshotter, layout storage.Layout) *Engine {
	return &Engine{
		catalog:   catalog,
		hasher:    hasher,
		prober:    prober,
		snapshots: snapshots,
		layout:    layout,
		locks:     NewOwnerLocks(layout.LockPath),
		log:       logging.For("reconcile"),
	}
}

// Layout returns the storage layout the engine works on.
func (e *Engine) Layout() storage.Layout {
	return e.layout
}

// Reconcile runs one pass over the owner's media directory.
//
// Per-file hash, probe and snapshot failures skip that file and the pass
// continues. Catalog failures also only abort their file, but they are
// returned joined at the end and orphan collection is skipped for the pass.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (*Result, error) {
	if err := e.layout.EnsureDirs(ownerID); err != nil {
		return nil, err
	}

	unlock, err := e.locks.Lock(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	metrics.ReconcileInProgress.Inc()
	defer metrics.ReconcileInProgress.Dec()

	start := time.Now()
	result := &Result{OwnerID: ownerID}

	err = e.run(ctx, ownerID, result)
	result.Duration = time.Since(start)

	metrics.ReconcileDuration.Observe(result.Duration.Seconds())
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		e.log.Error("pass for %s finished with errors in %v: %v", ownerID, result.Duration, err)
		return result, err
	}
	metrics.ReconcileRunsTotal.WithLabelValues("success").Inc()

	// An unchanged pass leaves the catalog untouched, pass time included.
	if result.Changed() {
		if err := e.catalog.SetLastReconcile(ctx, ownerID, time.Now()); err != nil {
			e.log.Warn("could not record pass time for %s: %v", ownerID, err)
		}
	}

	if result.Changed() || result.Skipped > 0 {
		e.log.Info("pass for %s: %d created, %d renamed, %d duplicates, %d removed, %d unchanged, %d skipped in %v",
			ownerID, result.Created, result.Renamed, result.Duplicates, result.Removed, result.Unchanged, result.Skipped, result.Duration)
	} else {
		e.log.Debug("pass for %s: %d unchanged in %v", ownerID, result.Unchanged, result.Duration)
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, ownerID string, result *Result) error {
	mediaDir := e.layout.MediaDir(ownerID)
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		return fmt.Errorf("read media directory %s: %w", mediaDir, err)
	}

	seen := make(map[string]bool)
	failedNames := make(map[string]bool)
	var catalogErrs []error

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || mediatypes.KindOfFile(name) == mediatypes.KindUnknown {
			continue
		}

		fr := e.processFile(ctx, ownerID, name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		result.count(fr.outcome)
		metrics.ReconcileFilesTotal.WithLabelValues(string(fr.outcome)).Inc()

		if fr.id != "" && !seen[fr.id] {
			seen[fr.id] = true
			result.Seen = append(result.Seen, fr.id)
		}
		if fr.failed {
			failedNames[name] = true
		}
		if fr.catalogErr != nil {
			catalogErrs = append(catalogErrs, fr.catalogErr)
		}
	}

	if len(catalogErrs) > 0 {
		e.log.Warn("skipping orphan collection for %s after %d catalog errors", ownerID, len(catalogErrs))
		return errors.Join(catalogErrs...)
	}

	removed, err := e.collectOrphans(ctx, ownerID, seen, failedNames)
	result.Removed = removed
	return err
}

// processFile hashes, classifies and applies the action for one file.
func (e *Engine) processFile(ctx context.Context, ownerID, name string) fileResult {
	path := e.layout.MediaPath(ownerID, name)

	hash, err := e.hasher.Hash(ctx, path)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			// Vanished between listing and hashing.
			e.log.Debug("%s disappeared during the pass", path)
			return fileResult{outcome: OutcomeSkipped}
		}
		e.log.Warn("skipping %s: hash failed: %v", path, err)
		return fileResult{outcome: OutcomeSkipped, failed: true}
	}

	existing, err := e.catalog.FindByOwnerAndHash(ctx, ownerID, hash)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return e.create(ctx, ownerID, name, hash)
	case err != nil:
		e.log.Error("catalog lookup for %s failed: %v", path, err)
		return fileResult{outcome: OutcomeSkipped, failed: true, catalogErr: fmt.Errorf("lookup %s: %w", name, err)}
	}

	if existing.StoredFileName == name {
		return fileResult{outcome: OutcomeUnchanged, id: existing.ID}
	}
	return e.renameOrCollapse(ctx, ownerID, name, hash, existing)
}

func (e *Engine) create(ctx context.Context, ownerID, name, hash string) fileResult {
	path := e.layout.MediaPath(ownerID, name)

	md, err := e.prober.Probe(ctx, path)
	if err != nil {
		e.log.Warn("skipping %s: probe failed: %v", path, err)
		return fileResult{outcome: OutcomeSkipped, failed: true}
	}

	obj := &database.MediaObject{
		OwnerID:        ownerID,
		ContentHash:    hash,
		StoredFileName: name,
		ContentType:    md.ContentType,
		Width:          md.Width,
		Height:         md.Height,
		DurationMillis: md.DurationMillis,
	}

	if md.Kind == mediatypes.KindVideo {
		if err := e.ensureSnapshot(ctx, ownerID, obj); err != nil {
			e.log.Warn("skipping %s: snapshot failed: %v", path, err)
			return fileResult{outcome: OutcomeSkipped, failed: true}
		}
	}

	if err := e.catalog.Upsert(ctx, obj); err != nil {
		e.log.Error("recording %s failed: %v", path, err)
		return fileResult{outcome: OutcomeSkipped, failed: true, catalogErr: fmt.Errorf("create %s: %w", name, err)}
	}

	e.log.Debug("created %s for %s", obj.ID, path)
	return fileResult{outcome: OutcomeCreated, id: obj.ID}
}

// renameOrCollapse handles a file whose content is already recorded under
// another name. If the recorded file still holds the same content the new
// file is a duplicate and is deleted; otherwise the record follows the rename.
func (e *Engine) renameOrCollapse(ctx context.Context, ownerID, name, hash string, existing *database.MediaObject) fileResult {
	path := e.layout.MediaPath(ownerID, name)
	oldPath := e.layout.MediaPath(ownerID, existing.StoredFileName)

	oldHash, err := e.hasher.Hash(ctx, oldPath)
	switch {
	case err == nil && oldHash == hash:
		if _, err := filesystem.RemoveIfExists(path); err != nil {
			e.log.Warn("could not delete duplicate %s of %s: %v", path, existing.StoredFileName, err)
		} else {
			e.log.Info("deleted %s, duplicate of %s", path, existing.StoredFileName)
		}
		return fileResult{outcome: OutcomeDuplicate, id: existing.ID}

	case err != nil && !apperr.Is(err, apperr.KindNotFound):
		// The recorded file exists but cannot be read; keep the record and retry later.
		e.log.Warn("skipping %s: cannot verify previous file %s: %v", path, oldPath, err)
		return fileResult{outcome: OutcomeSkipped, id: existing.ID, failed: true}
	}

	previous := existing.StoredFileName
	existing.StoredFileName = name

	if existing.IsVideo() {
		// The snapshot is keyed by hash, so it is only regenerated when missing.
		if err := e.ensureSnapshot(ctx, ownerID, existing); err != nil {
			e.log.Warn("renamed %s without snapshot: %v", path, err)
		}
	}

	if err := e.catalog.Upsert(ctx, existing); err != nil {
		e.log.Error("recording rename %s -> %s failed: %v", previous, name, err)
		return fileResult{outcome: OutcomeSkipped, id: existing.ID, failed: true, catalogErr: fmt.Errorf("rename %s: %w", name, err)}
	}

	e.log.Debug("renamed %s: %s -> %s", existing.ID, previous, name)
	return fileResult{outcome: OutcomeRenamed, id: existing.ID}
}

// ensureSnapshot generates the object's snapshot unless it is already on disk.
func (e *Engine) ensureSnapshot(ctx context.Context, ownerID string, obj *database.MediaObject) error {
	dst := e.layout.SnapshotPath(ownerID, obj.SnapshotFileName())
	if filesystem.Exists(dst) {
		return nil
	}
	var duration int64
	if obj.DurationMillis != nil {
		duration = *obj.DurationMillis
	}
	return e.snapshots.Generate(ctx, e.layout.MediaPath(ownerID, obj.StoredFileName), dst, duration)
}

// collectOrphans removes records not seen this pass, along with their
// snapshots. Records whose file failed to process this pass are kept.
func (e *Engine) collectOrphans(ctx context.Context, ownerID string, seen, failedNames map[string]bool) (int, error) {
	records, err := e.catalog.Query(ctx, database.NewFilter().Owner(ownerID))
	if err != nil {
		return 0, fmt.Errorf("list records for orphan collection: %w", err)
	}

	var orphans []string
	for i := range records {
		rec := &records[i]
		if seen[rec.ID] || failedNames[rec.StoredFileName] {
			continue
		}
		snapshot := e.layout.SnapshotPath(ownerID, rec.SnapshotFileName())
		if _, err := filesystem.RemoveIfExists(snapshot); err != nil {
			e.log.Warn("could not delete snapshot %s: %v", snapshot, err)
		}
		e.log.Debug("orphan %s (%s)", rec.ID, rec.StoredFileName)
		orphans = append(orphans, rec.ID)
	}

	if len(orphans) == 0 {
		return 0, nil
	}

	removed, err := e.catalog.Remove(ctx, orphans)
	if err != nil {
		return 0, fmt.Errorf("remove orphans: %w", err)
	}
	metrics.ReconcileOrphansRemoved.Add(float64(removed))
	return int(removed), nil
}
