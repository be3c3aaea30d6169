package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-library/internal/logging"
)

// AlbumNameKey normalizes an album name for uniqueness checks.
func AlbumNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AlbumNameExists reports whether the owner already has an album whose name
// equals name ignoring case and surrounding space. excludeID, when set,
// ignores that album (used when renaming).
func (d *Database) AlbumNameExists(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	done := observeQuery("album_name_exists")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) > 0 FROM media_albums WHERE owner_id = ? AND name_key = ? AND id != ?",
		ownerID, AlbumNameKey(name), excludeID,
	).Scan(&exists)
	done(err)
	return exists, err
}

// CreateAlbum creates an empty album. A name clash returns ErrConflict.
func (d *Database) CreateAlbum(ctx context.Context, ownerID, name string) (*MediaAlbum, error) {
	done := observeQuery("create_album")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now()
	album := &MediaAlbum{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       strings.TrimSpace(name),
		CreateDate: fromUnixMillis(unixMillis(now)),
		LastUpdate: fromUnixMillis(unixMillis(now)),
		Members:    []string{},
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO media_albums (id, owner_id, name, name_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, album.ID, ownerID, album.Name, AlbumNameKey(name), unixMillis(now), unixMillis(now))
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("album %q: %w", album.Name, ErrConflict)
		}
		done(err)
		return nil, err
	}

	done(nil)
	return album, nil
}

// GetAlbum returns an album with its members, or ErrNotFound.
func (d *Database) GetAlbum(ctx context.Context, id string) (*MediaAlbum, error) {
	done := observeQuery("get_album")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var album MediaAlbum
	var created, updated int64
	err := d.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, created_at, updated_at FROM media_albums WHERE id = ?", id,
	).Scan(&album.ID, &album.OwnerID, &album.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		done(ErrNotFound)
		return nil, ErrNotFound
	}
	if err != nil {
		done(err)
		return nil, err
	}
	album.CreateDate = fromUnixMillis(created)
	album.LastUpdate = fromUnixMillis(updated)

	members, err := d.albumMembersLocked(ctx, []string{id})
	if err != nil {
		done(err)
		return nil, err
	}
	album.Members = members[id]
	if album.Members == nil {
		album.Members = []string{}
	}

	done(nil)
	return &album, nil
}

// ListAlbums returns the owner's albums ordered by name.
func (d *Database) ListAlbums(ctx context.Context, ownerID string) ([]MediaAlbum, error) {
	done := observeQuery("list_albums")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, owner_id, name, created_at, updated_at
		FROM media_albums
		WHERE owner_id = ?
		ORDER BY name_key, id
	`, ownerID)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}

	var albums []MediaAlbum
	var ids []string
	for rows.Next() {
		var a MediaAlbum
		var created, updated int64
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &created, &updated); err != nil {
			rows.Close()
			done(err)
			return nil, err
		}
		a.CreateDate = fromUnixMillis(created)
		a.LastUpdate = fromUnixMillis(updated)
		albums = append(albums, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		done(err)
		return nil, err
	}
	rows.Close()

	members, err := d.albumMembersLocked(ctx, ids)
	if err != nil {
		done(err)
		return nil, err
	}
	for i := range albums {
		albums[i].Members = members[albums[i].ID]
		if albums[i].Members == nil {
			albums[i].Members = []string{}
		}
	}

	done(nil)
	return albums, nil
}

// albumMembersLocked loads member ids keyed by album id. Caller holds d.mu.
func (d *Database) albumMembersLocked(ctx context.Context, albumIDs []string) (map[string][]string, error) {
	members := make(map[string][]string, len(albumIDs))
	if len(albumIDs) == 0 {
		return members, nil
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT album_id, media_id FROM album_members WHERE album_id IN ("+placeholders(len(albumIDs))+") ORDER BY added_at, media_id",
		stringArgs(albumIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load album members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var albumID, mediaID string
		if err := rows.Scan(&albumID, &mediaID); err != nil {
			return nil, err
		}
		members[albumID] = append(members[albumID], mediaID)
	}
	return members, rows.Err()
}

// RenameAlbum changes an album's name. A clash with another album returns ErrConflict.
func (d *Database) RenameAlbum(ctx context.Context, id, name string) error {
	done := observeQuery("rename_album")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"UPDATE media_albums SET name = ?, name_key = ?, updated_at = ? WHERE id = ?",
		strings.TrimSpace(name), AlbumNameKey(name), unixMillis(time.Now()), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("album %q: %w", strings.TrimSpace(name), ErrConflict)
		}
		done(err)
		return err
	}
	if observeRows("rename_album", result) == 0 {
		done(ErrNotFound)
		return ErrNotFound
	}
	done(nil)
	return nil
}

// DeleteAlbum removes an album and its memberships. Media objects are untouched.
func (d *Database) DeleteAlbum(ctx context.Context, id string) error {
	done := observeQuery("delete_album")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM media_albums WHERE id = ?", id)
	if err != nil {
		done(err)
		return err
	}
	if observeRows("delete_album", result) == 0 {
		done(ErrNotFound)
		return ErrNotFound
	}
	done(nil)
	return nil
}

// AddAlbumMembers adds media ids to an album. Ids that do not exist or
// belong to a different owner than the album are skipped without error;
// ids already present are no-ops. It returns how many were added.
func (d *Database) AddAlbumMembers(ctx context.Context, albumID string, mediaIDs []string) (int, error) {
	return d.mutateMembers(ctx, "add_album_members", albumID, mediaIDs, true, `
		INSERT OR IGNORE INTO album_members (album_id, media_id, added_at)
		SELECT a.id, m.id, ?
		FROM media_albums a
		JOIN media_objects m ON m.owner_id = a.owner_id
		WHERE a.id = ? AND m.id = ?
	`)
}

// RemoveAlbumMembers removes media ids from an album and returns how many were removed.
func (d *Database) RemoveAlbumMembers(ctx context.Context, albumID string, mediaIDs []string) (int, error) {
	return d.mutateMembers(ctx, "remove_album_members", albumID, mediaIDs, false, `
		DELETE FROM album_members
		WHERE album_id = ? AND media_id = ?
	`)
}

// mutateMembers runs stmt with (albumID, mediaID), prefixed by the current
// time when stamped, for every distinct media id in one transaction. The
// album's updated_at is bumped when membership changed.
func (d *Database) mutateMembers(ctx context.Context, operation, albumID string, mediaIDs []string, stamped bool, stmt string) (int, error) {
	done := observeQuery(operation)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) > 0 FROM media_albums WHERE id = ?", albumID).Scan(&exists); err != nil {
		done(err)
		return 0, err
	}
	if !exists {
		done(ErrNotFound)
		return 0, ErrNotFound
	}

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		done(err)
		return 0, err
	}
	defer prepared.Close()

	now := unixMillis(time.Now())
	seen := make(map[string]bool, len(mediaIDs))
	changed := 0
	for _, id := range mediaIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		args := []interface{}{albumID, id}
		if stamped {
			args = append([]interface{}{now}, args...)
		}
		result, err := prepared.ExecContext(ctx, args...)
		if err != nil {
			done(err)
			return 0, fmt.Errorf("failed to update album membership: %w", err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			changed += int(n)
		}
	}

	if changed > 0 {
		if _, err := tx.ExecContext(ctx, "UPDATE media_albums SET updated_at = ? WHERE id = ?", now, albumID); err != nil {
			done(err)
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return 0, err
	}

	if skipped := len(seen) - changed; skipped > 0 {
		logging.Debug("album %s: %s changed %d, skipped %d", albumID, operation, changed, skipped)
	}
	done(nil)
	return changed, nil
}
