package places

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"place-registry/pkg/metrics"
)

// gatedStore blocks every Delete until gate is closed.
type gatedStore struct {
	gate chan struct{}
	mu   sync.Mutex
	refs []string
}

func (g *gatedStore) Store(context.Context, io.Reader, string) (string, error) { return "", nil }

func (g *gatedStore) Delete(ctx context.Context, ref string) error {
	<-g.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs = append(g.refs, ref)
	return nil
}

func TestImageJanitorNeverBlocksEnqueue(t *testing.T) {
	store := &gatedStore{gate: make(chan struct{})}
	reg := metrics.NewRegistry()
	j := NewImageJanitor(store, 1, 1, nil, reg)

	done := make(chan struct{})
	go func() {
		for _, ref := range []string{"a", "b", "c", "d", "e"} {
			j.Enqueue(ref)
		}
		j.Enqueue("")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	close(store.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := j.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(store.refs) != 5 {
		t.Fatalf("deleted %d images, want 5", len(store.refs))
	}
	if reg.Counter("place_image_cleanup_total", "").Get() != 5 {
		t.Fatal("successful deletions not counted")
	}
	// second close is a no-op
	if err := j.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestImageJanitorCloseHonoursContext(t *testing.T) {
	store := &gatedStore{gate: make(chan struct{})}
	j := NewImageJanitor(store, 1, 4, nil, metrics.NewRegistry())
	j.Enqueue("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := j.Close(ctx); err == nil {
		t.Fatal("close should report the pending deletion")
	}
	close(store.gate)
}

func TestImageJanitorEnqueueDuringClose(t *testing.T) {
	store := &gatedStore{gate: make(chan struct{})}
	close(store.gate)
	j := NewImageJanitor(store, 1, 1, nil, metrics.NewRegistry())

	const senders, perSender = 8, 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for k := 0; k < perSender; k++ {
				j.Enqueue(fmt.Sprintf("img-%d-%d", i, k))
			}
		}(i)
	}

	closed := make(chan error, 1)
	go func() {
		<-start
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		closed <- j.Close(ctx)
	}()
	close(start)
	wg.Wait()
	if err := <-closed; err != nil {
		t.Fatalf("close: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.refs) != senders*perSender {
		t.Fatalf("deleted %d images, want %d", len(store.refs), senders*perSender)
	}
}
