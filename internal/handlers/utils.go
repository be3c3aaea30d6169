package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"media-library/internal/apperr"
	"media-library/internal/database"
	"media-library/internal/logging"
	"media-library/internal/storage"
)

// OwnerHeader carries the authenticated caller's owner id.
const OwnerHeader = "X-Owner-ID"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// respondJSON writes v as a 200 JSON response.
func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// respondJSONStatus writes v as a JSON response with the given status code.
func respondJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// statusForKind maps an error kind to an HTTP status.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error with a status derived from its kind.
// Internal details of 5xx errors are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to send.
		return
	}
	status := statusForKind(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		logging.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		writeJSONError(w, http.StatusText(status), status)
		return
	}
	writeJSONError(w, err.Error(), status)
}

// ownerID returns the caller's owner id, writing 401 or 400 when it is
// missing or malformed.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		writeJSONError(w, "Owner identity required", http.StatusUnauthorized)
		return "", false
	}
	if err := storage.ValidateOwner(owner); err != nil {
		writeJSONError(w, "Invalid owner identity", http.StatusBadRequest)
		return "", false
	}
	return owner, true
}

// decodeJSON reads a JSON body into v, writing 400 on failure. An empty
// body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// FilterRequest is the JSON form of a media filter. Unset fields do not
// constrain the match.
type FilterRequest struct {
	IDs      []string `json:"ids,omitempty"`
	Favorite *bool    `json:"favorite,omitempty"`
	Deleted  *bool    `json:"deleted,omitempty"`
}

// Filter converts the request to a catalog filter.
func (f FilterRequest) Filter() database.Filter {
	filter := database.NewFilter()
	if f.IDs != nil {
		filter = filter.IDs(f.IDs...)
	}
	if f.Favorite != nil {
		filter = filter.Favorite(*f.Favorite)
	}
	if f.Deleted != nil {
		filter = filter.Deleted(*f.Deleted)
	}
	return filter
}

// filterFromQuery builds a filter from ?favorite=, ?deleted= and ?ids=a,b.
func filterFromQuery(r *http.Request) (database.Filter, error) {
	q := r.URL.Query()
	var req FilterRequest

	for _, p := range []struct {
		name string
		dst  **bool
	}{{"favorite", &req.Favorite}, {"deleted", &req.Deleted}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return database.Filter{}, apperr.Errorf(apperr.KindInvalid, "handlers.filter", "invalid %s value %q", p.name, raw)
		}
		*p.dst = &v
	}

	if raw, ok := q["ids"]; ok {
		req.IDs = []string{}
		for _, v := range raw {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					req.IDs = append(req.IDs, id)
				}
			}
		}
	}
	return req.Filter(), nil
}
