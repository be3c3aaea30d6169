package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAlbumNameKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Trips", "trips"},
		{"  Trips  ", "trips"},
		{"TRIPS", "trips"},
		{"Summer 2024", "summer 2024"},
	}
	for _, tt := range tests {
		if got := AlbumNameKey(tt.in); got != tt.want {
			t.Errorf("AlbumNameKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateAlbumUniqueName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	album, err := db.CreateAlbum(ctx, "alice", "  Trips ")
	if err != nil {
		t.Fatalf("CreateAlbum failed: %v", err)
	}
	if album.Name != "Trips" {
		t.Errorf("Name = %q, want trimmed Trips", album.Name)
	}
	if len(album.Members) != 0 {
		t.Errorf("new album has members: %v", album.Members)
	}

	exists, err := db.AlbumNameExists(ctx, "alice", "TRIPS", "")
	if err != nil || !exists {
		t.Errorf("AlbumNameExists(TRIPS) = %v, %v; want true", exists, err)
	}
	exists, _ = db.AlbumNameExists(ctx, "alice", "trips", album.ID)
	if exists {
		t.Error("AlbumNameExists did not honour excludeID")
	}
	exists, _ = db.AlbumNameExists(ctx, "bob", "trips", "")
	if exists {
		t.Error("album names leaked across owners")
	}

	if _, err := db.CreateAlbum(ctx, "alice", "trips"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate CreateAlbum error = %v, want ErrConflict", err)
	}
	if _, err := db.CreateAlbum(ctx, "bob", "Trips"); err != nil {
		t.Errorf("CreateAlbum for other owner failed: %v", err)
	}
}

func TestAlbumMembership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mine := newObject("alice", "h1", "1.jpg")
	mine2 := newObject("alice", "h2", "2.jpg")
	theirs := newObject("bob", "h3", "3.jpg")
	for _, m := range []*MediaObject{mine, mine2, theirs} {
		if err := db.Upsert(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	album, err := db.CreateAlbum(ctx, "alice", "Trips")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)

	added, err := db.AddAlbumMembers(ctx, album.ID, []string{mine.ID, theirs.ID, "missing", mine.ID})
	if err != nil {
		t.Fatalf("AddAlbumMembers failed: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1 (cross-owner and unknown ids skipped)", added)
	}

	got, err := db.GetAlbum(ctx, album.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Members) != 1 || !got.HasMember(mine.ID) {
		t.Errorf("Members = %v, want [%s]", got.Members, mine.ID)
	}
	if !got.LastUpdate.After(album.LastUpdate) {
		t.Errorf("LastUpdate not bumped: %v vs %v", got.LastUpdate, album.LastUpdate)
	}

	// Re-adding is a no-op and leaves LastUpdate alone.
	added, err = db.AddAlbumMembers(ctx, album.ID, []string{mine.ID})
	if err != nil || added != 0 {
		t.Errorf("re-add = %d, %v; want 0", added, err)
	}
	again, _ := db.GetAlbum(ctx, album.ID)
	if !again.LastUpdate.Equal(got.LastUpdate) {
		t.Error("no-op add changed LastUpdate")
	}

	if _, err := db.AddAlbumMembers(ctx, album.ID, []string{mine2.ID}); err != nil {
		t.Fatal(err)
	}
	removed, err := db.RemoveAlbumMembers(ctx, album.ID, []string{mine.ID, "missing"})
	if err != nil || removed != 1 {
		t.Errorf("RemoveAlbumMembers = %d, %v; want 1", removed, err)
	}
	got, _ = db.GetAlbum(ctx, album.ID)
	if len(got.Members) != 1 || got.Members[0] != mine2.ID {
		t.Errorf("Members after remove = %v", got.Members)
	}

	// Removing a media object drops its memberships.
	if _, err := db.Remove(ctx, []string{mine2.ID}); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetAlbum(ctx, album.ID)
	if len(got.Members) != 0 {
		t.Errorf("Members after media removal = %v, want none", got.Members)
	}

	if _, err := db.AddAlbumMembers(ctx, "missing", []string{mine.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddAlbumMembers(missing album) error = %v, want ErrNotFound", err)
	}
}

func TestListRenameDeleteAlbums(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b, _ := db.CreateAlbum(ctx, "alice", "beta")
	a, _ := db.CreateAlbum(ctx, "alice", "Alpha")
	if _, err := db.CreateAlbum(ctx, "bob", "gamma"); err != nil {
		t.Fatal(err)
	}

	albums, err := db.ListAlbums(ctx, "alice")
	if err != nil {
		t.Fatalf("ListAlbums failed: %v", err)
	}
	if len(albums) != 2 || albums[0].ID != a.ID || albums[1].ID != b.ID {
		t.Fatalf("ListAlbums = %+v, want Alpha then beta", albums)
	}

	if err := db.RenameAlbum(ctx, b.ID, "ALPHA"); !errors.Is(err, ErrConflict) {
		t.Errorf("RenameAlbum clash error = %v, want ErrConflict", err)
	}
	if err := db.RenameAlbum(ctx, b.ID, " Gamma "); err != nil {
		t.Errorf("RenameAlbum failed: %v", err)
	}
	if err := db.RenameAlbum(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameAlbum(missing) error = %v, want ErrNotFound", err)
	}
	got, _ := db.GetAlbum(ctx, b.ID)
	if got.Name != "Gamma" {
		t.Errorf("Name = %q, want Gamma", got.Name)
	}

	if err := db.DeleteAlbum(ctx, a.ID); err != nil {
		t.Errorf("DeleteAlbum failed: %v", err)
	}
	if _, err := db.GetAlbum(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAlbum after delete error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteAlbum(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteAlbum error = %v, want ErrNotFound", err)
	}
}
