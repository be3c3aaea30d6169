package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"media-library/internal/startup"
)

func TestGetVersion(t *testing.T) {
	origVersion, origCommit := startup.Version, startup.Commit
	defer func() {
		startup.Version, startup.Commit = origVersion, origCommit
	}()
	startup.Version = "1.2.3"
	startup.Commit = "abc1234"

	h := New(nil, nil, nil)
	w := httptest.NewRecorder()
	h.GetVersion(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	var info startup.BuildInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc1234" {
		t.Errorf("unexpected build info %+v", info)
	}
	if info.OS != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Errorf("platform = %s/%s", info.OS, info.Arch)
	}
}
