package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"media-library/internal/apperr"
)

const (
	mediaDirName    = "media"
	snapshotDirName = "snapshots"
	lockFileName    = ".reconcile.lock"
)

// Layout resolves per-owner paths under Root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

// ValidateOwner rejects owner ids that are empty, hidden, or not a single path element.
func ValidateOwner(ownerID string) error {
	switch {
	case ownerID == "":
		return apperr.Errorf(apperr.KindInvalid, "storage.ValidateOwner", "empty owner id")
	case ownerID == "." || ownerID == "..":
		return apperr.Errorf(apperr.KindInvalid, "storage.ValidateOwner", "invalid owner id %q", ownerID)
	case strings.HasPrefix(ownerID, "."):
		return apperr.Errorf(apperr.KindInvalid, "storage.ValidateOwner", "owner id %q is hidden", ownerID)
	case strings.ContainsAny(ownerID, `/\`) || strings.ContainsRune(ownerID, 0):
		return apperr.Errorf(apperr.KindInvalid, "storage.ValidateOwner", "owner id %q contains a path separator", ownerID)
	}
	return nil
}

// OwnerDir is {root}/{owner}.
func (l Layout) OwnerDir(ownerID string) string {
	return filepath.Join(l.Root, ownerID)
}

// MediaDir is {root}/{owner}/media.
func (l Layout) MediaDir(ownerID string) string {
	return filepath.Join(l.Root, ownerID, mediaDirName)
}

// SnapshotDir is {root}/{owner}/media/snapshots.
func (l Layout) SnapshotDir(ownerID string) string {
	return filepath.Join(l.MediaDir(ownerID), snapshotDirName)
}

// LockPath is the advisory lock file guarding the owner's reconciliation.
func (l Layout) LockPath(ownerID string) string {
	return filepath.Join(l.OwnerDir(ownerID), lockFileName)
}

// MediaPath is the full path of a stored file.
func (l Layout) MediaPath(ownerID, storedFileName string) string {
	return filepath.Join(l.MediaDir(ownerID), filepath.Base(storedFileName))
}

// SnapshotPath is the full path of a snapshot file.
func (l Layout) SnapshotPath(ownerID, snapshotFileName string) string {
	return filepath.Join(l.SnapshotDir(ownerID), filepath.Base(snapshotFileName))
}

// EnsureDirs creates the owner's media and snapshot directories if absent.
func (l Layout) EnsureDirs(ownerID string) error {
	if err := ValidateOwner(ownerID); err != nil {
		return err
	}
	if err := os.MkdirAll(l.SnapshotDir(ownerID), 0o755); err != nil {
		return fmt.Errorf("create directories for owner %s: %w", ownerID, err)
	}
	return nil
}

// Owners lists the owner directories present under the root, sorted.
// A missing root yields no owners.
func (l Layout) Owners() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list storage root: %w", err)
	}

	var owners []string
	for _, entry := range entries {
		if !entry.IsDir() || ValidateOwner(entry.Name()) != nil {
			continue
		}
		owners = append(owners, entry.Name())
	}
	sort.Strings(owners)
	return owners, nil
}
