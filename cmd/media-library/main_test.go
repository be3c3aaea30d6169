package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-library/internal/access"
	"media-library/internal/database"
	"media-library/internal/handlers"
	"media-library/internal/indexer"
	"media-library/internal/library"
	"media-library/internal/media"
	"media-library/internal/middleware"
	"media-library/internal/reconcile"
	"media-library/internal/startup"
	"media-library/internal/storage"
)

func newTestHandlers(t *testing.T) (*handlers.Handlers, *indexer.Indexer) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	layout := storage.New(t.TempDir())
	snapshots := media.NewSnapshotGenerator(media.SnapshotConfig{Workers: 1})
	engine := reconcile.New(db, media.NewHasher(), media.NewProber("", 0), snapshots, layout)
	idx := indexer.New(engine, layout, 0)
	t.Cleanup(idx.Stop)
	svc := library.New(db, snapshots, layout)
	return handlers.New(svc, access.NewKeyStore(time.Minute), idx), idx
}

func TestWrapMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t)
	handler := wrapMiddleware(h.Router(), &startup.Config{LogHealthChecks: true})

	req := httptest.NewRequest(http.MethodGet, "/api/albums", http.NoBody)
	req.Header.Set(handlers.OwnerHeader, "alice")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestEndToEndParse(t *testing.T) {
	h, idx := newTestHandlers(t)
	handler := wrapMiddleware(h.Router(), &startup.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/media/parse", http.NoBody)
	req.Header.Set(handlers.OwnerHeader, "alice")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"ownerId":"alice"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	// The queued pass runs on the scheduler after the response is sent.
	deadline := time.Now().Add(5 * time.Second)
	for idx.OwnerStatus("alice").LastPass.IsZero() {
		if time.Now().After(deadline) {
			t.Fatalf("queued pass never finished: %+v", idx.OwnerStatus("alice"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMetricsServer(t *testing.T) {
	h, _ := newTestHandlers(t)
	srv := newMetricsServer("0", h)

	for _, path := range []string{"/metrics", "/health"} {
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
}

func TestRunMaintenanceStops(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runMaintenance(ctx, db, access.NewKeyStore(10*time.Millisecond))
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runMaintenance did not stop")
	}
}

func TestSweepOnHangupStops(t *testing.T) {
	_, idx := newTestHandlers(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepOnHangup(ctx, idx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweepOnHangup did not stop")
	}
}
