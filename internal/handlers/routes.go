package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router builds the application router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Media. Fixed paths are registered before {id} so they win.
	media := r.PathPrefix("/api/media").Subrouter()
	media.HandleFunc("", h.ListMedia).Methods("GET")
	media.HandleFunc("/key", h.GetContentKey).Methods("GET")
	media.HandleFunc("/parse", h.Parse).Methods("POST")
	media.HandleFunc("/parse", h.GetParseStatus).Methods("GET")
	media.HandleFunc("/delete", h.DeleteMedia).Methods("POST")
	media.HandleFunc("/restore", h.RestoreMedia).Methods("POST")
	media.HandleFunc("/favorite/{id}", h.ToggleFavorite).Methods("POST")
	media.HandleFunc("/snapshot/{id}", h.GetSnapshot).Methods("GET", "HEAD")
	media.HandleFunc("/{id}/info", h.GetMediaInfo).Methods("GET")
	media.HandleFunc("/{id}", h.GetContent).Methods("GET", "HEAD")

	// Albums
	albums := r.PathPrefix("/api/albums").Subrouter()
	albums.HandleFunc("", h.ListAlbums).Methods("GET")
	albums.HandleFunc("", h.CreateAlbum).Methods("POST")
	albums.HandleFunc("/unique", h.CheckAlbumName).Methods("GET")
	albums.HandleFunc("/{id}", h.GetAlbum).Methods("GET")
	albums.HandleFunc("/{id}", h.RenameAlbum).Methods("PUT")
	albums.HandleFunc("/{id}", h.DeleteAlbum).Methods("DELETE")
	albums.HandleFunc("/{id}/members", h.AddAlbumMembers).Methods("POST")
	albums.HandleFunc("/{id}/members", h.RemoveAlbumMembers).Methods("DELETE")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, "Not found", http.StatusNotFound)
	})

	return r
}
