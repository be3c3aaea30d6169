package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("record conflicts with an existing one")
)

// Database is the media catalog.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the catalog at dbPath.
// dbPath is the full path to the database FILE (e.g. "/database/media.db")
// and its parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	-- One row per (owner, content hash)
	CREATE TABLE IF NOT EXISTS media_objects (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		stored_file_name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER,
		favorite INTEGER NOT NULL DEFAULT 0,
		marked_for_deletion INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(owner_id, content_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_media_owner ON media_objects(owner_id);
	CREATE INDEX IF NOT EXISTS idx_media_owner_name ON media_objects(owner_id, stored_file_name);
	CREATE INDEX IF NOT EXISTS idx_media_owner_favorite ON media_objects(owner_id, favorite);

	-- Albums; name_key is the trimmed, lowercased name
	CREATE TABLE IF NOT EXISTS media_albums (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(owner_id, name_key)
	);

	CREATE INDEX IF NOT EXISTS idx_albums_owner ON media_albums(owner_id);

	-- Album membership
	CREATE TABLE IF NOT EXISTS album_members (
		album_id TEXT NOT NULL,
		media_id TEXT NOT NULL,
		added_at INTEGER NOT NULL,
		PRIMARY KEY (album_id, media_id),
		FOREIGN KEY (album_id) REFERENCES media_albums(id) ON DELETE CASCADE,
		FOREIGN KEY (media_id) REFERENCES media_objects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_album_members_media ON album_members(media_id);

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// columnMigration adds a column to a table created by an older schema.
type columnMigration struct {
	table      string
	column     string
	definition string
	backfill   string
}

var migrations = []columnMigration{
	{
		table:      "media_objects",
		column:     "marked_for_deletion",
		definition: "INTEGER NOT NULL DEFAULT 0",
	},
	{
		table:      "media_albums",
		column:     "updated_at",
		definition: "INTEGER NOT NULL DEFAULT 0",
		backfill:   "UPDATE media_albums SET updated_at = created_at WHERE updated_at = 0",
	},
}

// runMigrations applies column migrations that are not yet present.
func (d *Database) runMigrations(ctx context.Context) error {
	for _, m := range migrations {
		var columnExists bool
		err := d.db.QueryRowContext(ctx, `
			SELECT COUNT(*) > 0
			FROM pragma_table_info(?)
			WHERE name = ?
		`, m.table, m.column).Scan(&columnExists)
		if err != nil {
			return fmt.Errorf("failed to check for %s.%s column: %w", m.table, m.column, err)
		}
		if columnExists {
			continue
		}

		logging.Info("Migrating database: adding %s column to %s table", m.column, m.table)

		// Table and column names come from the static list above.
		_, err = d.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.definition))
		if err != nil {
			return fmt.Errorf("failed to add %s column: %w", m.column, err)
		}

		if m.backfill != "" {
			if _, err := d.db.ExecContext(ctx, m.backfill); err != nil {
				return fmt.Errorf("failed to initialize %s values: %w", m.column, err)
			}
		}

		logging.Info("Migration complete: %s.%s added", m.table, m.column)
	}
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	done := observeQuery("vacuum")

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := d.db.ExecContext(ctx, "VACUUM")
	done(err)
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// observeQuery starts timing operation and returns the function that records it.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		recordQuery(operation, start, err)
	}
}

// observeRows records how many rows a mutation touched.
func observeRows(operation string, result sql.Result) int64 {
	rows, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	if rows > 0 {
		metrics.DBRowsAffected.WithLabelValues(operation).Observe(float64(rows))
	}
	return rows
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func unixMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	logging.Debug("Database directory is writable")

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", path)
		}
	}

	return nil
}
