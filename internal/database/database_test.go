package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a catalog in a temporary directory.
func setupTestDB(t testing.TB) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.db.PingContext(context.Background()); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}
}

func TestNewDatabaseMissingDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "test.db")
	if db, err := New(context.Background(), dbPath); err == nil {
		db.Close()
		t.Error("expected error for missing parent directory")
	}
}

func TestNewDatabaseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	m := &MediaObject{OwnerID: "alice", ContentHash: "h1", StoredFileName: "a.jpg", ContentType: "image/jpeg"}
	if err := db.Upsert(ctx, m); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	db.Close()

	db, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	got, err := db.FindByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("FindByID after reopen failed: %v", err)
	}
	if got.StoredFileName != "a.jpg" {
		t.Errorf("StoredFileName = %q, want a.jpg", got.StoredFileName)
	}
}

func TestMigrationsAddMissingColumns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Simulate an older albums table without updated_at.
	stmts := []string{
		"DROP TABLE album_members",
		"DROP TABLE media_albums",
		"CREATE TABLE media_albums (id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, name TEXT NOT NULL, name_key TEXT NOT NULL, created_at INTEGER NOT NULL, UNIQUE(owner_id, name_key))",
		"INSERT INTO media_albums (id, owner_id, name, name_key, created_at) VALUES ('a1', 'alice', 'Trips', 'trips', 1000)",
	}
	for _, stmt := range stmts {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup %q failed: %v", stmt, err)
		}
	}

	if err := db.runMigrations(ctx); err != nil {
		t.Fatalf("runMigrations failed: %v", err)
	}

	var updated int64
	if err := db.db.QueryRowContext(ctx, "SELECT updated_at FROM media_albums WHERE id = 'a1'").Scan(&updated); err != nil {
		t.Fatalf("updated_at not readable: %v", err)
	}
	if updated != 1000 {
		t.Errorf("updated_at = %d, want backfilled 1000", updated)
	}

	// Running again is a no-op.
	if err := db.runMigrations(ctx); err != nil {
		t.Errorf("second runMigrations failed: %v", err)
	}
}

func TestRecordQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		operation string
		err       error
	}{
		{"successful query", "test_operation", nil},
		{"failed query", "test_operation", errors.New("test error")},
		{"not found counts as success", "test_operation", ErrNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recordQuery(tt.operation, time.Now(), tt.err)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "?"},
		{3, "?, ?, ?"},
	}
	for _, tt := range tests {
		if got := placeholders(tt.n); got != tt.want {
			t.Errorf("placeholders(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestVacuum(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Vacuum(context.Background()); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
	db.UpdateDBMetrics()
}
