package metrics

import (
	"math"
	"slices"
	"sync"
)

// DefaultLatencyCapacity is the number of samples kept by default.
const DefaultLatencyCapacity = 1000

// LatencyTracker keeps the most recent latency samples, in milliseconds,
// in a fixed-size ring.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatencyTracker returns a tracker holding up to capacity samples.
// A non-positive capacity selects DefaultLatencyCapacity.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = DefaultLatencyCapacity
	}
	return &LatencyTracker{samples: make([]float64, capacity)}
}

// Record adds a sample, overwriting the oldest once the ring is full.
func (t *LatencyTracker) Record(ms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = ms
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.full = true
	}
}

// Len returns the number of samples held.
func (t *LatencyTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lenLocked()
}

func (t *LatencyTracker) lenLocked() int {
	if t.full {
		return len(t.samples)
	}
	return t.next
}

// Percentile returns the nearest-rank percentile p in (0, 100] of the held
// samples, or 0 when there are none.
func (t *LatencyTracker) Percentile(p float64) float64 {
	t.mu.Lock()
	n := t.lenLocked()
	if n == 0 {
		t.mu.Unlock()
		return 0
	}
	sorted := slices.Clone(t.samples[:n])
	t.mu.Unlock()

	slices.Sort(sorted)

	idx := int(math.Ceil(p*float64(n)/100)) - 1
	idx = max(0, min(idx, n-1))
	return sorted[idx]
}

// Percentiles is a p50/p95/p99 summary.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Summary returns p50, p95 and p99 from one consistent copy of the samples.
func (t *LatencyTracker) Summary() Percentiles {
	t.mu.Lock()
	n := t.lenLocked()
	sorted := slices.Clone(t.samples[:n])
	t.mu.Unlock()

	if n == 0 {
		return Percentiles{}
	}
	slices.Sort(sorted)

	at := func(p float64) float64 {
		idx := int(math.Ceil(p*float64(n)/100)) - 1
		return sorted[max(0, min(idx, n-1))]
	}
	return Percentiles{P50: at(50), P95: at(95), P99: at(99)}
}
