package media

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"media-library/internal/apperr"
	"media-library/internal/filesystem"
)

// copyChunk bounds how much is read between context checks.
const copyChunk = 1 << 20

// Hasher computes content digests of stored files.
type Hasher struct {
	retry filesystem.RetryConfig
}

// NewHasher creates a Hasher using the default NFS retry settings.
func NewHasher() *Hasher {
	return &Hasher{retry: filesystem.DefaultRetryConfig()}
}

// Hash streams the file at path through BLAKE2b-256 and returns the
// lowercase hex digest. Identical bytes always produce identical digests.
func (h *Hasher) Hash(ctx context.Context, path string) (string, error) {
	const op = "media.Hash"

	f, err := filesystem.OpenWithRetry(path, h.retry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.NotFound(op, err)
		}
		return "", apperr.E(apperr.KindInternal, op, err)
	}
	defer f.Close()

	sum, err := blake2b.New256(nil)
	if err != nil {
		return "", apperr.E(apperr.KindInternal, op, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := io.CopyN(sum, f, copyChunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", apperr.E(apperr.KindInternal, op, fmt.Errorf("read %s: %w", path, err))
		}
		if n < copyChunk {
			break
		}
	}

	return hex.EncodeToString(sum.Sum(nil)), nil
}
