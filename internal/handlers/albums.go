package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// AlbumRequest carries an album name.
type AlbumRequest struct {
	Name string `json:"name"`
}

// MembersRequest carries media ids for membership changes.
type MembersRequest struct {
	IDs []string `json:"ids"`
}

// ListAlbums returns the caller's albums.
func (h *Handlers) ListAlbums(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	albums, err := h.library.Albums(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, albums)
}

// CreateAlbum creates an empty album.
func (h *Handlers) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req AlbumRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	album, err := h.library.CreateAlbum(r.Context(), owner, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSONStatus(w, http.StatusCreated, album)
}

// CheckAlbumName reports whether ?name= is free among the caller's albums.
func (h *Handlers) CheckAlbumName(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSONError(w, "Name is required", http.StatusBadRequest)
		return
	}

	unique, err := h.library.UniqueName(r.Context(), owner, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, map[string]bool{"unique": unique})
}

// GetAlbum returns one album with its members.
func (h *Handlers) GetAlbum(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	album, err := h.library.Album(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, album)
}

// RenameAlbum renames an album.
func (h *Handlers) RenameAlbum(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req AlbumRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	album, err := h.library.RenameAlbum(r.Context(), owner, mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, album)
}

// DeleteAlbum deletes an album. Its media are untouched.
func (h *Handlers) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	if err := h.library.DeleteAlbum(r.Context(), owner, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddAlbumMembers adds media to an album. Unknown ids and ids of other
// owners are skipped.
func (h *Handlers) AddAlbumMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, true)
}

// RemoveAlbumMembers removes media from an album.
func (h *Handlers) RemoveAlbumMembers(w http.ResponseWriter, r *http.Request) {
	h.changeMembers(w, r, false)
}

func (h *Handlers) changeMembers(w http.ResponseWriter, r *http.Request, add bool) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req MembersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeJSONError(w, "ids array is required", http.StatusBadRequest)
		return
	}

	albumID := mux.Vars(r)["id"]
	change := h.library.RemoveMembers
	if add {
		change = h.library.AddMembers
	}

	album, err := change(r.Context(), owner, albumID, req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, album)
}
