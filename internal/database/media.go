package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const mediaColumns = `id, owner_id, content_hash, stored_file_name, content_type,
	width, height, duration_ms, favorite, marked_for_deletion, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMedia(row rowScanner) (*MediaObject, error) {
	var m MediaObject
	var duration sql.NullInt64
	var favorite, deleted int
	var created, updated int64

	if err := row.Scan(
		&m.ID, &m.OwnerID, &m.ContentHash, &m.StoredFileName, &m.ContentType,
		&m.Width, &m.Height, &duration, &favorite, &deleted, &created, &updated,
	); err != nil {
		return nil, err
	}

	if duration.Valid {
		ms := duration.Int64
		m.DurationMillis = &ms
	}
	m.Favorite = favorite != 0
	m.MarkedForDeletion = deleted != 0
	m.CreatedAt = fromUnixMillis(created)
	m.UpdatedAt = fromUnixMillis(updated)
	return &m, nil
}

func (d *Database) findOne(ctx context.Context, operation, where string, args ...interface{}) (*MediaObject, error) {
	done := observeQuery(operation)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m, err := scanMedia(d.db.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media_objects WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	done(err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindByOwnerAndHash returns the owner's record for a content hash, or ErrNotFound.
func (d *Database) FindByOwnerAndHash(ctx context.Context, ownerID, contentHash string) (*MediaObject, error) {
	return d.findOne(ctx, "find_by_owner_hash", "owner_id = ? AND content_hash = ?", ownerID, contentHash)
}

// FindByID returns a record by id, or ErrNotFound.
func (d *Database) FindByID(ctx context.Context, id string) (*MediaObject, error) {
	return d.findOne(ctx, "find_by_id", "id = ?", id)
}

// Upsert inserts m, or updates the record with the same id. A new record
// gets a fresh id and creation time. Writing a second record for an
// existing (owner, content hash) returns ErrConflict.
func (d *Database) Upsert(ctx context.Context, m *MediaObject) error {
	done := observeQuery("upsert_media")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now()
	isNew := m.ID == ""
	if isNew {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	var duration sql.NullInt64
	if m.DurationMillis != nil {
		duration = sql.NullInt64{Int64: *m.DurationMillis, Valid: true}
	}

	query := `
	INSERT INTO media_objects (` + mediaColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner_id = excluded.owner_id,
		content_hash = excluded.content_hash,
		stored_file_name = excluded.stored_file_name,
		content_type = excluded.content_type,
		width = excluded.width,
		height = excluded.height,
		duration_ms = excluded.duration_ms,
		favorite = excluded.favorite,
		marked_for_deletion = excluded.marked_for_deletion,
		updated_at = excluded.updated_at
	`

	result, err := d.db.ExecContext(ctx, query,
		m.ID, m.OwnerID, m.ContentHash, m.StoredFileName, m.ContentType,
		m.Width, m.Height, duration, boolToInt(m.Favorite), boolToInt(m.MarkedForDeletion),
		unixMillis(m.CreatedAt), unixMillis(m.UpdatedAt),
	)
	if err != nil {
		if isNew {
			m.ID = ""
		}
		if isUniqueViolation(err) {
			err = fmt.Errorf("media %s for owner %s: %w", m.ContentHash, m.OwnerID, ErrConflict)
		}
		done(err)
		return err
	}

	observeRows("upsert_media", result)
	done(nil)
	return nil
}

// Query returns every record matching f, oldest first.
func (d *Database) Query(ctx context.Context, f Filter) ([]MediaObject, error) {
	done := observeQuery("query_media")

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where, args := f.where()
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+mediaColumns+" FROM media_objects WHERE "+where+" ORDER BY created_at, id",
		args...,
	)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	defer rows.Close()

	var items []MediaObject
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			done(err)
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		items = append(items, *m)
	}
	err = rows.Err()
	done(err)
	return items, err
}

// Remove deletes the records with the given ids in one transaction and
// returns how many existed. Album memberships go with them.
func (d *Database) Remove(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	done := observeQuery("remove_media")

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

	result, err := tx.ExecContext(ctx,
		"DELETE FROM media_objects WHERE id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...,
	)
	if err != nil {
		done(err)
		return 0, fmt.Errorf("failed to remove media: %w", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return 0, err
	}

	removed := observeRows("remove_media", result)
	done(nil)
	return removed, nil
}

// SetFavorite sets the favorite flag of one record.
func (d *Database) SetFavorite(ctx context.Context, id string, favorite bool) error {
	done := observeQuery("set_favorite")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		"UPDATE media_objects SET favorite = ?, updated_at = ? WHERE id = ?",
		boolToInt(favorite), unixMillis(time.Now()), id,
	)
	if err != nil {
		done(err)
		return err
	}
	if observeRows("set_favorite", result) == 0 {
		done(ErrNotFound)
		return ErrNotFound
	}
	done(nil)
	return nil
}

// SetMarkedForDeletion sets the soft-deletion flag on the given ids and
// returns how many rows changed state.
func (d *Database) SetMarkedForDeletion(ctx context.Context, ids []string, marked bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	done := observeQuery("set_deleted")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	args := append([]interface{}{boolToInt(marked), unixMillis(time.Now()), boolToInt(marked)}, stringArgs(ids)...)
	result, err := d.db.ExecContext(ctx,
		"UPDATE media_objects SET marked_for_deletion = ?, updated_at = ? WHERE marked_for_deletion != ? AND id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		done(err)
		return 0, err
	}
	changed := observeRows("set_deleted", result)
	done(nil)
	return changed, nil
}
