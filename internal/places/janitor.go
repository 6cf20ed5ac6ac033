package places

import (
	"context"
	"sync"
	"time"

	"place-registry/internal/domain"
	errs "place-registry/pkg/errors"
	"place-registry/pkg/logging"
	"place-registry/pkg/metrics"
)

// ImageJanitor deletes stored images after the records referencing them are
// gone. Deletion is best effort: failures are logged and counted, never
// returned to the caller of Enqueue.
type ImageJanitor struct {
	store   domain.ImageStore
	queue   chan string
	timeout time.Duration
	log     *logging.ComponentLogger

	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
	detached sync.WaitGroup

	mFailed  *metrics.Counter
	mDeleted *metrics.Counter
}

func NewImageJanitor(store domain.ImageStore, workers, queueSize int, log *logging.Logger, reg *metrics.Registry) *ImageJanitor {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	if log == nil {
		log = logging.NewNop()
	}
	if reg == nil {
		reg = metrics.Default
	}
	j := &ImageJanitor{
		store:    store,
		queue:    make(chan string, queueSize),
		timeout:  30 * time.Second,
		log:      log.WithComponent("image_janitor"),
		mFailed:  reg.Counter("place_image_cleanup_failures_total", "Post-commit image deletions that failed"),
		mDeleted: reg.Counter("place_image_cleanup_total", "Post-commit image deletions that succeeded"),
	}
	j.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go j.run()
	}
	return j
}

// Enqueue schedules ref for deletion and returns immediately. When the queue
// is full the deletion runs on its own goroutine. Once Close has started,
// the deletion runs on the caller's goroutine instead.
func (j *ImageJanitor) Enqueue(ref string) {
	if ref == "" {
		return
	}
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		j.remove(ref)
		return
	}
	// detached.Add happens under the read lock with closed unset, so it is
	// ordered before the Wait in Close.
	select {
	case j.queue <- ref:
	default:
		j.detached.Add(1)
		go func() {
			defer j.detached.Done()
			j.remove(ref)
		}()
	}
	j.mu.RUnlock()
}

func (j *ImageJanitor) run() {
	defer j.workers.Done()
	for ref := range j.queue {
		j.remove(ref)
	}
}

func (j *ImageJanitor) remove(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.store.Delete(ctx, ref); err != nil {
		warn := errs.NewSideEffect("places.ImageJanitor", ref, "failed to delete image", err)
		j.log.Warn("image cleanup failed", warn, logging.String("image", ref))
		j.mFailed.Inc(1)
		return
	}
	j.mDeleted.Inc(1)
}

// Close stops accepting queued work and waits for pending deletions, or for
// ctx to end, whichever comes first. It is safe to call more than once.
func (j *ImageJanitor) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.workers.Wait()
		j.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		j.log.Warn("image janitor closed with pending deletions", ctx.Err())
		return ctx.Err()
	}
}
