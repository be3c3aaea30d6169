package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"media-library/internal/apperr"
	"media-library/internal/filesystem"
	"media-library/internal/logging"

	"github.com/gorilla/mux"
)

// DeleteRequest selects media to delete.
type DeleteRequest struct {
	FilterRequest
	Permanent bool `json:"permanent"`
}

// AffectedResponse lists the ids a bulk operation changed.
type AffectedResponse struct {
	IDs []string `json:"ids"`
}

// ParseStatusResponse reports the state of the caller's reconciliation.
// LastParse is when a pass last changed the library; LastChecked is when
// the latest pass finished, changed or not, since the server started.
type ParseStatusResponse struct {
	Running     bool       `json:"running"`
	LastParse   *time.Time `json:"lastParse"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// ParseAcceptedResponse acknowledges a queued pass.
type ParseAcceptedResponse struct {
	OwnerID string `json:"ownerId"`
	Status  string `json:"status"`
}

// ListMedia returns the caller's media matching the query filter.
func (h *Handlers) ListMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := h.library.List(r.Context(), owner, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, items)
}

// GetMediaInfo returns one media object's catalog record.
func (h *Handlers) GetMediaInfo(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	m, err := h.library.Get(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, m)
}

// GetContent streams a media object's original file with range support.
// The request must carry a valid content key.
func (h *Handlers) GetContent(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.contentOwner(w, r)
	if !ok {
		return
	}

	path, m, err := h.library.ContentPath(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.serveFile(w, r, path, m.ContentType)
}

// GetSnapshot serves a media object's preview, generating a missing video
// snapshot first. A failed generation is a 500 with an empty body.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.contentOwner(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	m, err := h.library.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	path, err := h.library.Snapshot(r.Context(), owner, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindPermission) {
			writeError(w, r, err)
			return
		}
		logging.Error("snapshot for %s failed: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	contentType := m.ContentType
	if m.IsVideo() {
		contentType = "image/jpeg"
	}
	h.serveFile(w, r, path, contentType)
}

func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	retry := filesystem.DefaultRetryConfig()

	f, err := filesystem.OpenWithRetry(path, retry)
	if err != nil {
		writeError(w, r, apperr.NotFound("handlers.serveFile", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, r, err)
		return
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

// contentOwner authenticates a content request: the owner header and a
// ?key= issued to that owner.
func (h *Handlers) contentOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := ownerID(w, r)
	if !ok {
		return "", false
	}
	if !h.keys.Validate(owner, r.URL.Query().Get("key")) {
		writeJSONError(w, "Invalid or expired content key", http.StatusForbidden)
		return "", false
	}
	return owner, true
}

// GetContentKey issues the caller's current content access key.
func (h *Handlers) GetContentKey(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	key, err := h.keys.Current(owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, key)
}

// ToggleFavorite flips the favorite flag of one media object.
func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	favorite, err := h.library.ToggleFavorite(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, map[string]bool{"favorite": favorite})
}

// DeleteMedia soft-deletes, or permanently deletes, the caller's media
// matching the request filter.
func (h *Handlers) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids, err := h.library.MarkForDeletion(r.Context(), owner, req.Filter(), req.Permanent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, AffectedResponse{IDs: ids})
}

// RestoreMedia clears the deletion flag on the caller's media matching the
// request filter.
func (h *Handlers) RestoreMedia(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req FilterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids, err := h.library.Restore(r.Context(), owner, req.Filter())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, AffectedResponse{IDs: ids})
}

// Parse queues a reconciliation pass over the caller's media directory and
// returns 202 at once. Progress is reported by GetParseStatus.
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	if !h.scheduler.TriggerOwner(owner) {
		writeJSONError(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	logging.Debug("queued pass for %s", owner)
	respondJSONStatus(w, http.StatusAccepted, ParseAcceptedResponse{OwnerID: owner, Status: "queued"})
}

// GetParseStatus reports whether a pass is running for the caller and when
// the library was last reconciled.
func (h *Handlers) GetParseStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	last, err := h.library.LastParse(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	state := h.scheduler.OwnerStatus(owner)
	resp := ParseStatusResponse{
		Running:   state.Running,
		LastError: state.LastError,
	}
	if !last.IsZero() {
		resp.LastParse = &last
	}
	if !state.LastPass.IsZero() {
		resp.LastChecked = &state.LastPass
	}
	respondJSON(w, resp)
}
