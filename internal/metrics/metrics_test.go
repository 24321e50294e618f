package metrics

import (
	"sync"
	"testing"
)

func TestCounters(t *testing.T) {
	r := NewRegistry(3, 0)

	r.Inc(0)
	r.Inc(0)
	r.Add(2, 5)

	if got := r.Counter(0); got != 2 {
		t.Fatalf("counter 0: got %d, want 2", got)
	}
	if got := r.Counter(1); got != 0 {
		t.Fatalf("counter 1: got %d, want 0", got)
	}
	if got := r.Counter(2); got != 5 {
		t.Fatalf("counter 2: got %d, want 5", got)
	}
}

func TestOutOfRangeIgnored(t *testing.T) {
	r := NewRegistry(1, 1)

	r.Inc(-1)
	r.Inc(1)
	r.Observe(-1, 0.001)
	r.Observe(1, 0.001)

	snap := r.Snapshot()
	if snap.Counters[0] != 0 {
		t.Fatal("out-of-range increments must not land anywhere")
	}
	for _, b := range snap.Histograms[0] {
		if b != 0 {
			t.Fatal("out-of-range observations must not land anywhere")
		}
	}
}

func TestHistogramBucketing(t *testing.T) {
	r := NewRegistry(0, 1)

	r.Observe(0, 0.001) // bucket 0 (≤5ms)
	r.Observe(0, 0.005) // bucket 0, inclusive bound
	r.Observe(0, 0.03)  // bucket 3 (≤50ms)
	r.Observe(0, 2.0)   // +Inf bucket

	snap := r.Snapshot()
	h := snap.Histograms[0]
	want := [BucketCount]uint64{2, 0, 0, 1, 0, 0, 0, 1}
	if h != want {
		t.Fatalf("buckets: got %v, want %v", h, want)
	}
}

func TestConcurrentWrites(t *testing.T) {
	const (
		goroutines = 16
		perG       = 1000
	)
	r := NewRegistry(2, 1)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				r.Inc(0)
				r.Observe(0, 0.02)
			}
		}()
	}
	wg.Wait()

	if got := r.Counter(0); got != goroutines*perG {
		t.Fatalf("counter 0: got %d, want %d", got, goroutines*perG)
	}
	var total uint64
	for _, b := range r.Snapshot().Histograms[0] {
		total += b
	}
	if total != goroutines*perG {
		t.Fatalf("histogram total: got %d, want %d", total, goroutines*perG)
	}
}

func TestNilRegistrySafe(t *testing.T) {
	var r *Registry
	r.Inc(0)
	r.Observe(0, 0.1)
	if r.Counter(0) != 0 {
		t.Fatal("nil registry counter must read 0")
	}
	if snap := r.Snapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatal("nil registry snapshot must be empty")
	}
}
