package library

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
	"media-library/internal/reconcile"
	"media-library/internal/storage"
)

// Catalog is the part of the media catalog the service uses.
type Catalog interface {
	FindByID(ctx context.Context, id string) (*database.MediaObject, error)
	Query(ctx context.Context, f database.Filter) ([]database.MediaObject, error)
	Remove(ctx context.Context, ids []string) (int64, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	SetMarkedForDeletion(ctx context.Context, ids []string, marked bool) (int64, error)
	LastReconcile(ctx context.Context, ownerID string) (time.Time, error)

	AlbumNameExists(ctx context.Context, ownerID, name, excludeID string) (bool, error)
	CreateAlbum(ctx context.Context, ownerID, name string) (*database.MediaAlbum, error)
	GetAlbum(ctx context.Context, id string) (*database.MediaAlbum, error)
	ListAlbums(ctx context.Context, ownerID string) ([]database.MediaAlbum, error)
	RenameAlbum(ctx context.Context, id, name string) error
	DeleteAlbum(ctx context.Context, id string) error
	AddAlbumMembers(ctx context.Context, albumID string, mediaIDs []string) (int, error)
	RemoveAlbumMembers(ctx context.Context, albumID string, mediaIDs []string) (int, error)
}

// Service is the owner-scoped entry point used by the HTTP layer. Every
// method takes the caller's owner id and never returns or mutates another
// owner's data.
type Service struct {
	catalog   Catalog
	snapshots reconcile.Snapshotter
	layout    storage.Layout
	retry     filesystem.RetryConfig
	log       *logging.Logger
}

// New creates a Service.
func New(catalog Catalog, snapshots reconcile.Snapshotter, layout storage.Layout) *Service {
	return &Service{
		catalog:   catalog,
		snapshots: snapshots,
		layout:    layout,
		retry:     filesystem.DefaultRetryConfig(),
		log:       logging.For("library"),
	}
}

// catalogError tags a catalog error with its kind.
func catalogError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, database.ErrConflict):
		return apperr.E(apperr.KindConflict, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperr.E(apperr.KindInternal, op, err)
}

// List returns the owner's media matching f. Any owner condition in f is
// replaced by ownerID.
func (s *Service) List(ctx context.Context, ownerID string, f database.Filter) ([]database.MediaObject, error) {
	if err := storage.ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	items, err := s.catalog.Query(ctx, f.Owner(ownerID))
	if err != nil {
		return nil, catalogError("library.List", err)
	}
	if items == nil {
		items = []database.MediaObject{}
	}
	return items, nil
}

// Get returns one media object. Another owner's object is a Permission error.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*database.MediaObject, error) {
	m, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return nil, catalogError("library.Get", err)
	}
	if m.OwnerID != ownerID {
		return nil, apperr.Permission("library.Get", fmt.Errorf("media %s belongs to another owner", id))
	}
	return m, nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, ownerID, id string) (bool, error) {
	m, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return false, err
	}
	favorite := !m.Favorite
	if err := s.catalog.SetFavorite(ctx, id, favorite); err != nil {
		return false, catalogError("library.ToggleFavorite", err)
	}
	return favorite, nil
}

// MarkForDeletion soft-deletes or, when permanent, deletes the owner's media
// matching f and returns the affected ids.
//
// A soft delete only sets the flag; files stay on disk and reconciliation
// leaves them alone. A permanent delete removes the file, its snapshot and
// the record. A file that is already gone does not stop the record from
// being removed; a file that cannot be removed keeps its record, and the
// failure is returned after the rest are processed.
func (s *Service) MarkForDeletion(ctx context.Context, ownerID string, f database.Filter, permanent bool) ([]string, error) {
	items, err := s.List(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}

	if !permanent {
		var ids []string
		for i := range items {
			if !items[i].MarkedForDeletion {
				ids = append(ids, items[i].ID)
			}
		}
		if _, err := s.catalog.SetMarkedForDeletion(ctx, ids, true); err != nil {
			return nil, catalogError("library.MarkForDeletion", err)
		}
		return nonNil(ids), nil
	}

	var ids []string
	var fileErrs []error
	for i := range items {
		m := &items[i]
		path := s.layout.MediaPath(ownerID, m.StoredFileName)
		if _, err := filesystem.RemoveIfExists(path); err != nil {
			s.log.Warn("could not delete %s, keeping its record: %v", path, err)
			fileErrs = append(fileErrs, err)
			continue
		}
		snapshot := s.layout.SnapshotPath(ownerID, m.SnapshotFileName())
		if _, err := filesystem.RemoveIfExists(snapshot); err != nil {
			s.log.Warn("could not delete snapshot %s: %v", snapshot, err)
		}
		ids = append(ids, m.ID)
	}

	if _, err := s.catalog.Remove(ctx, ids); err != nil {
		return nil, catalogError("library.MarkForDeletion", err)
	}
	if len(ids) > 0 {
		s.log.Info("permanently deleted %d media for %s", len(ids), ownerID)
	}
	if len(fileErrs) > 0 {
		return nonNil(ids), apperr.E(apperr.KindInternal, "library.MarkForDeletion", errors.Join(fileErrs...))
	}
	return nonNil(ids), nil
}

// Restore clears the deletion flag on the owner's media matching f and
// returns the ids that were restored.
func (s *Service) Restore(ctx context.Context, ownerID string, f database.Filter) ([]string, error) {
	items, err := s.List(ctx, ownerID, f.Deleted(true))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for i := range items {
		ids = append(ids, items[i].ID)
	}
	if _, err := s.catalog.SetMarkedForDeletion(ctx, ids, false); err != nil {
		return nil, catalogError("library.Restore", err)
	}
	return ids, nil
}

// ContentPath returns the on-disk path of a media object's original file.
func (s *Service) ContentPath(ctx context.Context, ownerID, id string) (string, *database.MediaObject, error) {
	m, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", nil, err
	}
	path := s.layout.MediaPath(ownerID, m.StoredFileName)
	if _, err := filesystem.StatWithRetry(path, s.retry); err != nil {
		if os.IsNotExist(err) {
			return "", nil, apperr.NotFound("library.ContentPath", fmt.Errorf("file for media %s is missing", id))
		}
		return "", nil, apperr.E(apperr.KindInternal, "library.ContentPath", err)
	}
	return path, m, nil
}

// Snapshot returns the path of a media object's preview. A video's
// snapshot is generated on the spot if it is missing; an image is its own
// preview.
func (s *Service) Snapshot(ctx context.Context, ownerID, id string) (string, error) {
	src, m, err := s.ContentPath(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if !m.IsVideo() {
		return src, nil
	}

	dst := s.layout.SnapshotPath(ownerID, m.SnapshotFileName())
	if filesystem.Exists(dst) {
		return dst, nil
	}

	var duration int64
	if m.DurationMillis != nil {
		duration = *m.DurationMillis
	}
	if err := s.snapshots.Generate(ctx, src, dst, duration); err != nil {
		s.log.Warn("snapshot for %s failed: %v", id, err)
		return "", err
	}
	return dst, nil
}

// LastParse returns when a pass last changed the owner's library, or the
// zero time.
func (s *Service) LastParse(ctx context.Context, ownerID string) (time.Time, error) {
	t, err := s.catalog.LastReconcile(ctx, ownerID)
	return t, catalogError("library.LastParse", err)
}

// UniqueName reports whether name is free among the owner's albums,
// ignoring case and surrounding space.
func (s *Service) UniqueName(ctx context.Context, ownerID, name string) (bool, error) {
	exists, err := s.catalog.AlbumNameExists(ctx, ownerID, name, "")
	if err != nil {
		return false, catalogError("library.UniqueName", err)
	}
	return !exists, nil
}

func validAlbumName(op, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Errorf(apperr.KindInvalid, op, "album name is empty")
	}
	return nil
}

// CreateAlbum creates an empty album. A name already used by another of
// the owner's albums is a Conflict.
func (s *Service) CreateAlbum(ctx context.Context, ownerID, name string) (*database.MediaAlbum, error) {
	if err := storage.ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validAlbumName("library.CreateAlbum", name); err != nil {
		return nil, err
	}
	unique, err := s.UniqueName(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if !unique {
		return nil, apperr.Errorf(apperr.KindConflict, "library.CreateAlbum", "album %q already exists", strings.TrimSpace(name))
	}
	album, err := s.catalog.CreateAlbum(ctx, ownerID, name)
	if err != nil {
		return nil, catalogError("library.CreateAlbum", err)
	}
	return album, nil
}

// Album returns one of the owner's albums.
func (s *Service) Album(ctx context.Context, ownerID, id string) (*database.MediaAlbum, error) {
	album, err := s.catalog.GetAlbum(ctx, id)
	if err != nil {
		return nil, catalogError("library.Album", err)
	}
	if album.OwnerID != ownerID {
		return nil, apperr.Permission("library.Album", fmt.Errorf("album %s belongs to another owner", id))
	}
	return album, nil
}

// Albums lists the owner's albums by name.
func (s *Service) Albums(ctx context.Context, ownerID string) ([]database.MediaAlbum, error) {
	albums, err := s.catalog.ListAlbums(ctx, ownerID)
	if err != nil {
		return nil, catalogError("library.Albums", err)
	}
	if albums == nil {
		albums = []database.MediaAlbum{}
	}
	return albums, nil
}

// RenameAlbum renames one of the owner's albums.
func (s *Service) RenameAlbum(ctx context.Context, ownerID, id, name string) (*database.MediaAlbum, error) {
	if err := validAlbumName("library.RenameAlbum", name); err != nil {
		return nil, err
	}
	if _, err := s.Album(ctx, ownerID, id); err != nil {
		return nil, err
	}
	exists, err := s.catalog.AlbumNameExists(ctx, ownerID, name, id)
	if err != nil {
		return nil, catalogError("library.RenameAlbum", err)
	}
	if exists {
		return nil, apperr.Errorf(apperr.KindConflict, "library.RenameAlbum", "album %q already exists", strings.TrimSpace(name))
	}
	if err := s.catalog.RenameAlbum(ctx, id, name); err != nil {
		return nil, catalogError("library.RenameAlbum", err)
	}
	return s.Album(ctx, ownerID, id)
}

// DeleteAlbum deletes one of the owner's albums. Its media are untouched.
func (s *Service) DeleteAlbum(ctx context.Context, ownerID, id string) error {
	if _, err := s.Album(ctx, ownerID, id); err != nil {
		return err
	}
	return catalogError("library.DeleteAlbum", s.catalog.DeleteAlbum(ctx, id))
}

// AddMembers adds media to one of the owner's albums and returns the
// updated album. Ids that are unknown or belong to another owner are
// skipped without error.
func (s *Service) AddMembers(ctx context.Context, ownerID, albumID string, mediaIDs []string) (*database.MediaAlbum, error) {
	if _, err := s.Album(ctx, ownerID, albumID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.AddAlbumMembers(ctx, albumID, mediaIDs); err != nil {
		return nil, catalogError("library.AddMembers", err)
	}
	return s.Album(ctx, ownerID, albumID)
}

// RemoveMembers removes media from one of the owner's albums and returns
// the updated album.
func (s *Service) RemoveMembers(ctx context.Context, ownerID, albumID string, mediaIDs []string) (*database.MediaAlbum, error) {
	if _, err := s.Album(ctx, ownerID, albumID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.RemoveAlbumMembers(ctx, albumID, mediaIDs); err != nil {
		return nil, catalogError("library.RemoveMembers", err)
	}
	return s.Album(ctx, ownerID, albumID)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
