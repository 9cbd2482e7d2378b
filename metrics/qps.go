package metrics

import (
	"sync"
	"time"
)

// DefaultQPSWindow is the sliding window used by the service.
const DefaultQPSWindow = time.Minute

// minSpan keeps a burst of events recorded in the same instant from
// producing an infinite rate.
const minSpan = time.Millisecond

// QPSTracker counts events in a sliding time window.
type QPSTracker struct {
	mu     sync.Mutex
	window time.Duration
	events []time.Time
	now    func() time.Time
}

// NewQPSTracker returns a tracker over window. A non-positive window
// selects DefaultQPSWindow.
func NewQPSTracker(window time.Duration) *QPSTracker {
	return NewQPSTrackerWithClock(window, time.Now)
}

// NewQPSTrackerWithClock is NewQPSTracker with an injectable clock.
func NewQPSTrackerWithClock(window time.Duration, now func() time.Time) *QPSTracker {
	if window <= 0 {
		window = DefaultQPSWindow
	}
	return &QPSTracker{window: window, now: now}
}

// Record registers one event at the current time.
func (t *QPSTracker) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.events = append(t.events, now)
	t.evictLocked(now)
}

// QPS returns the event rate over the retained span: from the oldest
// retained event, or the window start if later, until now.
func (t *QPSTracker) QPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evictLocked(now)
	if len(t.events) == 0 {
		return 0
	}

	start := t.events[0]
	if ws := now.Add(-t.window); ws.After(start) {
		start = ws
	}
	span := max(now.Sub(start), minSpan)
	return float64(len(t.events)) / span.Seconds()
}

// Count returns the number of events in the window.
func (t *QPSTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	return len(t.events)
}

func (t *QPSTracker) evictLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.events) && t.events[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	// Shift instead of reslicing so the backing array does not grow forever.
	n := copy(t.events, t.events[i:])
	t.events = t.events[:n]
}
