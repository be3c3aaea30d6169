package indexer

import (
	"context"
	"sync"
	"time"

	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// ownerJob is one owner waiting for a pass.
type ownerJob struct {
	ownerID string
}

// runParallel calls fn for every owner using at most idx.numWorkers
// goroutines. Owners not yet started when ctx is done are skipped. The
// returned slice holds the non-nil errors in completion order.
func (idx *Indexer) runParallel(ctx context.Context, owners []string, fn func(ownerID string) error) []error {
	if len(owners) == 0 {
		return nil
	}

	numWorkers := idx.numWorkers
	if numWorkers > len(owners) {
		numWorkers = len(owners)
	}
	metrics.SchedulerWorkers.Set(float64(numWorkers))

	jobs := make(chan ownerJob)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	startTime := time.Now()
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				if err := fn(job.ownerID); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			logging.Debug("Owner worker %d finished", id)
		}(i)
	}

enqueue:
	for _, ownerID := range owners {
		if idx.throttle != nil && !idx.throttle.WaitIfPaused() {
			logging.Info("Memory monitor stopped, skipping remaining owners")
			break enqueue
		}
		select {
		case jobs <- ownerJob{ownerID: ownerID}:
		case <-ctx.Done():
			logging.Info("Sweep cancelled, skipping remaining owners")
			break enqueue
		}
	}
	close(jobs)
	wg.Wait()

	logging.Debug("Processed %d owners with %d workers in %v (errors: %d)",
		len(owners), numWorkers, time.Since(startTime), len(errs))

	if err := ctx.Err(); err != nil {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	return errs
}
