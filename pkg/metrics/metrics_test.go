package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounterIsSharedByName(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("places_created_total", "created")
	b := r.Counter("places_created_total", "ignored")
	if a != b {
		t.Fatal("same name must yield the same counter")
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Inc(1)
		}()
	}
	wg.Wait()
	if got := b.Get(); got != 50 {
		t.Fatalf("counter = %d, want 50", got)
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("geocode_latency_ms", "latency", []float64{100, 10})
	for _, v := range []float64{5, 50, 500} {
		h.Observe(v)
	}
	if h.Count() != 3 {
		t.Fatalf("count = %d", h.Count())
	}

	out := scrape(t, r)
	for _, want := range []string{
		`geocode_latency_ms_bucket{le="10"} 1`,
		`geocode_latency_ms_bucket{le="100"} 2`,
		`geocode_latency_ms_bucket{le="+Inf"} 3`,
		`geocode_latency_ms_sum 555`,
		`geocode_latency_ms_count 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHandlerText(t *testing.T) {
	r := NewRegistry()
	r.Counter("place-tx.failures", "aborted writes").Inc(2)
	r.Gauge("janitor_queue", "queued refs").Set(1.5)

	out := scrape(t, r)
	for _, want := range []string{
		"# HELP place_tx_failures aborted writes",
		"# TYPE place_tx_failures counter",
		"place_tx_failures 2",
		"# TYPE janitor_queue gauge",
		"janitor_queue 1.5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}
