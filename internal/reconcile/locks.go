package reconcile

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"media-library/internal/logging"
)

const (
	lockShards        = 64
	lockRetryInterval = 100 * time.Millisecond
)

// OwnerLocks serializes reconciliation per owner. Within the process a
// sharded mutex keyed by owner id is held; across processes (the server
// and the reconcile CLI) an advisory lock file is held as well.
type OwnerLocks struct {
	shards   [lockShards]sync.Mutex
	lockPath func(ownerID string) string
}

// NewOwnerLocks creates owner locks. lockPath maps an owner to its lock
// file; nil disables the file lock.
func NewOwnerLocks(lockPath func(ownerID string) string) *OwnerLocks {
	return &OwnerLocks{lockPath: lockPath}
}

func (l *OwnerLocks) shard(ownerID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	return &l.shards[h.Sum32()%lockShards]
}

// Lock blocks until the owner's lock is held or ctx is done. The returned
// function releases it and must always be called.
func (l *OwnerLocks) Lock(ctx context.Context, ownerID string) (func(), error) {
	mu := l.shard(ownerID)

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// Hand the mutex back once the pending Lock completes.
		go func() {
			<-acquired
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}

	if l.lockPath == nil {
		return mu.Unlock, nil
	}

	fileLock := flock.New(l.lockPath(ownerID))
	ok, err := fileLock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !ok {
		mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("acquire lock for owner %s: %w", ownerID, err)
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			logging.Warn("failed to release reconcile lock for %s: %v", ownerID, err)
		}
		mu.Unlock()
	}, nil
}
