package database

import (
	"time"

	"media-library/internal/mediatypes"
)

// MediaObject is one physical media file owned by exactly one user.
type MediaObject struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"ownerId"`
	ContentHash       string    `json:"contentHash"`
	StoredFileName    string    `json:"storedFileName"`
	ContentType       string    `json:"contentType"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	DurationMillis    *int64    `json:"durationMillis,omitempty"`
	Favorite          bool      `json:"favorite"`
	MarkedForDeletion bool      `json:"markedForDeletion"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// SnapshotFileName is the snapshot cache key. It depends only on the content hash.
func (m *MediaObject) SnapshotFileName() string {
	return mediatypes.SnapshotFileName(m.ContentHash)
}

// IsVideo reports whether the object is a video.
func (m *MediaObject) IsVideo() bool {
	return mediatypes.IsVideoContentType(m.ContentType)
}

// MediaAlbum is a named collection of media objects owned by one user.
type MediaAlbum struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Name       string    `json:"name"`
	CreateDate time.Time `json:"createDate"`
	LastUpdate time.Time `json:"lastUpdate"`
	Members    []string  `json:"members"`
}

// HasMember reports whether id is in the album.
func (a *MediaAlbum) HasMember(id string) bool {
	for _, m := range a.Members {
		if m == id {
			return true
		}
	}
	return false
}
