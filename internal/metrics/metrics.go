package metrics

import "sync/atomic"

// BucketCount is the fixed number of latency buckets per histogram.
const BucketCount = 8

// BucketBoundsSeconds are the upper bounds of the latency buckets; the last
// bucket is +Inf.
var BucketBoundsSeconds = [BucketCount - 1]float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// paddedCounter occupies a full cache line so adjacent counters do not
// false-share under concurrent increments.
type paddedCounter struct {
	v atomic.Uint64
	_ [56]byte
}

type histogram struct {
	buckets [BucketCount]paddedCounter
}

func (h *histogram) observe(seconds float64) {
	for i, bound := range BucketBoundsSeconds {
		if seconds <= bound {
			h.buckets[i].v.Add(1)
			return
		}
	}
	h.buckets[BucketCount-1].v.Add(1)
}

// Registry stores a fixed set of counters and latency histograms, addressed
// by index. The write path is lock-free and allocation-free.
type Registry struct {
	counters   []paddedCounter
	histograms []histogram
}

// NewRegistry allocates storage for the given number of counters and
// histograms.
func NewRegistry(counters, histograms int) *Registry {
	if counters < 0 {
		counters = 0
	}
	if histograms < 0 {
		histograms = 0
	}
	return &Registry{
		counters:   make([]paddedCounter, counters),
		histograms: make([]histogram, histograms),
	}
}

// Inc increments a counter. Out-of-range IDs are ignored.
func (r *Registry) Inc(id int) {
	r.Add(id, 1)
}

// Add increments a counter by n. Out-of-range IDs are ignored.
func (r *Registry) Add(id int, n uint64) {
	if r == nil || id < 0 || id >= len(r.counters) {
		return
	}
	r.counters[id].v.Add(n)
}

// Observe records a latency sample, in seconds, into a histogram.
// Out-of-range IDs are ignored.
func (r *Registry) Observe(id int, seconds float64) {
	if r == nil || id < 0 || id >= len(r.histograms) {
		return
	}
	r.histograms[id].observe(seconds)
}

// Counter returns the current value of a counter.
func (r *Registry) Counter(id int) uint64 {
	if r == nil || id < 0 || id >= len(r.counters) {
		return 0
	}
	return r.counters[id].v.Load()
}

// Snapshot is a point-in-time copy of all metric values. Buckets are
// non-cumulative.
type Snapshot struct {
	Counters   []uint64
	Histograms [][BucketCount]uint64
}

// Snapshot copies every counter and histogram. Values are read atomically
// per slot; the snapshot as a whole is not a consistent cut, which is fine
// for monotonic counters.
func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}

	snap := Snapshot{
		Counters:   make([]uint64, len(r.counters)),
		Histograms: make([][BucketCount]uint64, len(r.histograms)),
	}
	for i := range r.counters {
		snap.Counters[i] = r.counters[i].v.Load()
	}
	for i := range r.histograms {
		for j := range r.histograms[i].buckets {
			snap.Histograms[i][j] = r.histograms[i].buckets[j].v.Load()
		}
	}
	return snap
}
