package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"media-library/internal/access"
	"media-library/internal/database"
	"media-library/internal/indexer"
	"media-library/internal/library"
	"media-library/internal/storage"

	"github.com/gorilla/mux"
)

type mockScheduler struct {
	status indexer.HealthStatus
	refuse bool
	owners map[string]indexer.OwnerStatus
	mu     sync.Mutex
	queued []string
}

func (m *mockScheduler) IsReady() bool                         { return m.status.Ready }
func (m *mockScheduler) GetHealthStatus() indexer.HealthStatus { return m.status }

func (m *mockScheduler) TriggerOwner(ownerID string) bool {
	if m.refuse {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, ownerID)
	return true
}

func (m *mockScheduler) OwnerStatus(ownerID string) indexer.OwnerStatus {
	return m.owners[ownerID]
}

type stubSnapshotter struct {
	err error
}

func (s *stubSnapshotter) Generate(_ context.Context, _ string, dst string, _ int64) error {
	if s.err != nil {
		return s.err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("jpeg-bytes"), 0o644)
}

type testServer struct {
	t      *testing.T
	db     *database.Database
	layout storage.Layout
	keys   *access.KeyStore
	sched  *mockScheduler
	snaps  *stubSnapshotter
	router *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ts := &testServer{
		t:      t,
		db:     db,
		layout: storage.New(t.TempDir()),
		keys:   access.NewKeyStore(time.Minute),
		sched:  &mockScheduler{owners: map[string]indexer.OwnerStatus{}},
		snaps:  &stubSnapshotter{},
	}
	svc := library.New(db, ts.snaps, ts.layout)
	ts.router = New(svc, ts.keys, ts.sched).Router()
	return ts
}

func (ts *testServer) add(owner, name, contentType string) *database.MediaObject {
	ts.t.Helper()
	if err := ts.layout.EnsureDirs(owner); err != nil {
		ts.t.Fatal(err)
	}
	if err := os.WriteFile(ts.layout.MediaPath(owner, name), []byte("content of "+name), 0o644); err != nil {
		ts.t.Fatal(err)
	}
	m := &database.MediaObject{
		OwnerID:        owner,
		ContentHash:    "hash-" + owner + "-" + name,
		StoredFileName: name,
		ContentType:    contentType,
	}
	if err := ts.db.Upsert(context.Background(), m); err != nil {
		ts.t.Fatal(err)
	}
	return m
}

func (ts *testServer) do(method, target, owner, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) key(owner string) string {
	ts.t.Helper()
	k, err := ts.keys.Current(owner)
	if err != nil {
		ts.t.Fatal(err)
	}
	return k.Value
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestOwnerHeaderRequired(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		owner  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"hidden", ".alice", http.StatusBadRequest},
		{"traversal", "..", http.StatusBadRequest},
		{"valid", "alice", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodGet, "/api/media", tt.owner, "")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestListMedia(t *testing.T) {
	ts := newTestServer(t)
	a := ts.add("alice", "a.jpg", "image/jpeg")
	b := ts.add("alice", "b.mp4", "video/mp4")
	ts.add("bob", "c.jpg", "image/jpeg")

	if _, err := ts.db.SetMarkedForDeletion(context.Background(), []string{b.ID}, true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{a.ID, b.ID}},
		{"not deleted", "?deleted=false", []string{a.ID}},
		{"deleted", "?deleted=true", []string{b.ID}},
		{"by id", "?ids=" + b.ID, []string{b.ID}},
		{"empty id list", "?ids=", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodGet, "/api/media"+tt.query, "alice", "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var items []database.MediaObject
			decode(t, w, &items)
			if items == nil {
				t.Fatal("expected a JSON array, got null")
			}
			got := map[string]bool{}
			for _, m := range items {
				if m.OwnerID != "alice" {
					t.Errorf("leaked record of %s", m.OwnerID)
				}
				got[m.ID] = true
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.want))
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("missing %s", id)
				}
			}
		})
	}

	t.Run("bad bool", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/media?favorite=maybe", "alice", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestGetMediaInfo(t *testing.T) {
	ts := newTestServer(t)
	m := ts.add("alice", "a.jpg", "image/jpeg")

	w := ts.do(http.MethodGet, "/api/media/"+m.ID+"/info", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got database.MediaObject
	decode(t, w, &got)
	if got.StoredFileName != "a.jpg" {
		t.Errorf("storedFileName = %q", got.StoredFileName)
	}

	if w := ts.do(http.MethodGet, "/api/media/"+m.ID+"/info", "bob", ""); w.Code != http.StatusForbidden {
		t.Errorf("cross-owner status = %d, want 403", w.Code)
	}
	if w := ts.do(http.MethodGet, "/api/media/nope/info", "alice", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", w.Code)
	}
}

func TestGetContent(t *testing.T) {
	ts := newTestServer(t)
	m := ts.add("alice", "a.jpg", "image/jpeg")

	t.Run("valid key", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/media/"+m.ID+"?key="+ts.key("alice"), "alice", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if w.Body.String() != "content of a.jpg" {
			t.Errorf("body = %q", w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
	})

	t.Run("range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/media/"+m.ID+"?key="+ts.key("alice"), nil)
		req.Header.Set(OwnerHeader, "alice")
		req.Header.Set("Range", "bytes=0-6")
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		if w.Code != http.StatusPartialContent {
			t.Fatalf("status = %d, want 206", w.Code)
		}
		if w.Body.String() != "content" {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if w := ts.do(http.MethodGet, "/api/media/"+m.ID, "alice", ""); w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("key of another owner", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/media/"+m.ID+"?key="+ts.key("bob"), "alice", "")
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("file missing on disk", func(t *testing.T) {
		gone := ts.add("alice", "gone.jpg", "image/jpeg")
		os.Remove(ts.layout.MediaPath("alice", "gone.jpg"))
		w := ts.do(http.MethodGet, "/api/media/"+gone.ID+"?key="+ts.key("alice"), "alice", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestGetContentKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/media/key", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
	var key access.Key
	decode(t, w, &key)
	if key.Value == "" || key.ExpiresAt.IsZero() {
		t.Errorf("incomplete key %+v", key)
	}
	if !ts.keys.Validate("alice", key.Value) {
		t.Error("issued key does not validate")
	}
}

func TestGetSnapshot(t *testing.T) {
	ts := newTestServer(t)
	img := ts.add("alice", "a.jpg", "image/jpeg")
	vid := ts.add("alice", "b.mp4", "video/mp4")

	t.Run("image is its own preview", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/media/snapshot/"+img.ID+"?key="+ts.key("alice"), "alice", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if w.Body.String() != "content of a.jpg" {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("video snapshot generated", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/media/snapshot/"+vid.ID+"?key="+ts.key("alice"), "alice", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q", ct)
		}
		if w.Body.String() != "jpeg-bytes" {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("generation failure", func(t *testing.T) {
		other := ts.add("alice", "c.mp4", "video/mp4")
		ts.snaps.err = errors.New("ffmpeg exploded")
		defer func() { ts.snaps.err = nil }()

		w := ts.do(http.MethodGet, "/api/media/snapshot/"+other.ID+"?key="+ts.key("alice"), "alice", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("expected empty body, got %q", w.Body.String())
		}
	})
}

func TestToggleFavorite(t *testing.T) {
	ts := newTestServer(t)
	m := ts.add("alice", "a.jpg", "image/jpeg")

	for _, want := range []bool{true, false} {
		w := ts.do(http.MethodPost, "/api/media/favorite/"+m.ID, "alice", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp map[string]bool
		decode(t, w, &resp)
		if resp["favorite"] != want {
			t.Errorf("favorite = %v, want %v", resp["favorite"], want)
		}
	}

	if w := ts.do(http.MethodPost, "/api/media/favorite/"+m.ID, "bob", ""); w.Code != http.StatusForbidden {
		t.Errorf("cross-owner status = %d, want 403", w.Code)
	}
}

func TestDeleteAndRestore(t *testing.T) {
	ts := newTestServer(t)
	a := ts.add("alice", "a.jpg", "image/jpeg")
	b := ts.add("alice", "b.jpg", "image/jpeg")

	w := ts.do(http.MethodPost, "/api/media/delete", "alice", `{"ids":["`+a.ID+`"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var resp AffectedResponse
	decode(t, w, &resp)
	if len(resp.IDs) != 1 || resp.IDs[0] != a.ID {
		t.Errorf("deleted ids = %v", resp.IDs)
	}

	w = ts.do(http.MethodPost, "/api/media/restore", "alice", `{"ids":["`+a.ID+`","`+b.ID+`"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("restore status = %d", w.Code)
	}
	resp = AffectedResponse{}
	decode(t, w, &resp)
	if len(resp.IDs) != 1 || resp.IDs[0] != a.ID {
		t.Errorf("restored ids = %v", resp.IDs)
	}

	w = ts.do(http.MethodPost, "/api/media/delete", "alice", `{"ids":["`+b.ID+`"],"permanent":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("permanent delete status = %d", w.Code)
	}
	if _, err := os.Stat(ts.layout.MediaPath("alice", "b.jpg")); !os.IsNotExist(err) {
		t.Errorf("file still on disk: %v", err)
	}
	if _, err := ts.db.FindByID(context.Background(), b.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("record still in catalog: %v", err)
	}

	if w := ts.do(http.MethodPost, "/api/media/delete", "alice", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestParse(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/media/parse", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status ParseStatusResponse
	decode(t, w, &status)
	if status.LastParse != nil || status.LastChecked != nil || status.Running {
		t.Errorf("unexpected initial status %+v", status)
	}

	// The pass is queued on the scheduler, not run in the request.
	w = ts.do(http.MethodPost, "/api/media/parse", "alice", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("parse status = %d, want 202", w.Code)
	}
	var accepted ParseAcceptedResponse
	decode(t, w, &accepted)
	if accepted.OwnerID != "alice" || accepted.Status != "queued" {
		t.Errorf("unexpected response %+v", accepted)
	}
	if len(ts.sched.queued) != 1 || ts.sched.queued[0] != "alice" {
		t.Errorf("queued = %v, want [alice]", ts.sched.queued)
	}

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checked := when.Add(time.Hour)
	if err := ts.db.SetLastReconcile(context.Background(), "alice", when); err != nil {
		t.Fatal(err)
	}
	ts.sched.owners["alice"] = indexer.OwnerStatus{Running: true, LastPass: checked}

	w = ts.do(http.MethodGet, "/api/media/parse", "alice", "")
	status = ParseStatusResponse{}
	decode(t, w, &status)
	if status.LastParse == nil || !status.LastParse.Equal(when) {
		t.Errorf("lastParse = %v, want %v", status.LastParse, when)
	}
	if status.LastChecked == nil || !status.LastChecked.Equal(checked) || !status.Running {
		t.Errorf("scheduler state not reported: %+v", status)
	}
}

func TestParseRefusedWhileStopping(t *testing.T) {
	ts := newTestServer(t)
	ts.sched.refuse = true

	w := ts.do(http.MethodPost, "/api/media/parse", "alice", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAlbumEndpoints(t *testing.T) {
	ts := newTestServer(t)
	m := ts.add("alice", "a.jpg", "image/jpeg")
	foreign := ts.add("bob", "b.jpg", "image/jpeg")

	w := ts.do(http.MethodPost, "/api/albums", "alice", `{"name":"Holiday"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var album database.MediaAlbum
	decode(t, w, &album)
	if album.Name != "Holiday" || album.OwnerID != "alice" {
		t.Fatalf("unexpected album %+v", album)
	}

	if w := ts.do(http.MethodPost, "/api/albums", "alice", `{"name":" holiday "}`); w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", w.Code)
	}
	if w := ts.do(http.MethodPost, "/api/albums", "alice", `{"name":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", w.Code)
	}

	w = ts.do(http.MethodGet, "/api/albums/unique?name=HOLIDAY", "alice", "")
	var unique map[string]bool
	decode(t, w, &unique)
	if unique["unique"] {
		t.Error("name should be taken")
	}
	w = ts.do(http.MethodGet, "/api/albums/unique?name=Holiday", "bob", "")
	unique = nil
	decode(t, w, &unique)
	if !unique["unique"] {
		t.Error("names are scoped per owner")
	}

	body := `{"ids":["` + m.ID + `","` + foreign.ID + `","missing"]}`
	w = ts.do(http.MethodPost, "/api/albums/"+album.ID+"/members", "alice", body)
	if w.Code != http.StatusOK {
		t.Fatalf("add members status = %d", w.Code)
	}
	album = database.MediaAlbum{}
	decode(t, w, &album)
	if len(album.Members) != 1 || album.Members[0] != m.ID {
		t.Errorf("members = %v, want [%s]", album.Members, m.ID)
	}

	if w := ts.do(http.MethodGet, "/api/albums/"+album.ID, "bob", ""); w.Code != http.StatusForbidden {
		t.Errorf("cross-owner get status = %d, want 403", w.Code)
	}

	w = ts.do(http.MethodPut, "/api/albums/"+album.ID, "alice", `{"name":"Summer"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d", w.Code)
	}
	album = database.MediaAlbum{}
	decode(t, w, &album)
	if album.Name != "Summer" {
		t.Errorf("name = %q", album.Name)
	}

	w = ts.do(http.MethodDelete, "/api/albums/"+album.ID+"/members", "alice", `{"ids":["`+m.ID+`"]}`)
	album = database.MediaAlbum{}
	decode(t, w, &album)
	if len(album.Members) != 0 {
		t.Errorf("members after removal = %v", album.Members)
	}

	if w := ts.do(http.MethodPost, "/api/albums/"+album.ID+"/members", "alice", `{"ids":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty ids status = %d, want 400", w.Code)
	}

	w = ts.do(http.MethodGet, "/api/albums", "alice", "")
	var albums []database.MediaAlbum
	decode(t, w, &albums)
	if len(albums) != 1 {
		t.Errorf("got %d albums, want 1", len(albums))
	}

	if w := ts.do(http.MethodDelete, "/api/albums/"+album.ID, "alice", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := ts.do(http.MethodGet, "/api/albums/"+album.ID, "alice", ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if _, err := ts.db.FindByID(context.Background(), m.ID); err != nil {
		t.Errorf("deleting an album must keep its media: %v", err)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/nothing", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
