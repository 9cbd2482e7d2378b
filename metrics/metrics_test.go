package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyTracker(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		lt := NewLatencyTracker(10)
		assert.Zero(t, lt.Percentile(50))
		assert.Zero(t, lt.Len())
		assert.Equal(t, Percentiles{}, lt.Summary())
	})

	t.Run("NearestRank", func(t *testing.T) {
		lt := NewLatencyTracker(100)
		for i := 10; i >= 1; i-- {
			lt.Record(float64(i))
		}
		assert.Equal(t, 10, lt.Len())
		assert.Equal(t, 10.0, lt.Percentile(100))
		assert.Equal(t, 5.0, lt.Percentile(50))
		assert.Equal(t, 1.0, lt.Percentile(1))
		assert.Equal(t, 10.0, lt.Percentile(95))
		assert.Equal(t, 1.0, lt.Percentile(0), "clamped to the first rank")
		assert.Equal(t, Percentiles{P50: 5, P95: 10, P99: 10}, lt.Summary())
	})

	t.Run("RingOverwritesOldest", func(t *testing.T) {
		lt := NewLatencyTracker(3)
		lt.Record(100)
		lt.Record(1)
		lt.Record(2)
		lt.Record(3)
		assert.Equal(t, 3, lt.Len())
		assert.Equal(t, 3.0, lt.Percentile(100))
		assert.Equal(t, 1.0, lt.Percentile(1))
	})

	t.Run("DefaultCapacity", func(t *testing.T) {
		lt := NewLatencyTracker(0)
		for i := range 1500 {
			lt.Record(float64(i))
		}
		assert.Equal(t, DefaultLatencyCapacity, lt.Len())
		assert.Equal(t, 500.0, lt.Percentile(0.05))
	})

	t.Run("Concurrent", func(t *testing.T) {
		lt := NewLatencyTracker(50)
		var wg sync.WaitGroup
		for g := range 4 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := range 1000 {
					lt.Record(float64(g*1000 + i))
				}
			}()
			go func() {
				defer wg.Done()
				for range 100 {
					_ = lt.Percentile(99)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, lt.Len())
	})
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestQPSTracker(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		q := NewQPSTracker(0)
		assert.Zero(t, q.QPS())
	})

	t.Run("PartialWindow", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_000, 0)}
		q := NewQPSTrackerWithClock(time.Minute, clock.Now)

		// 20 events over 10 seconds.
		for range 20 {
			q.Record()
			clock.Advance(500 * time.Millisecond)
		}
		// Oldest event is 10s old, so the divisor is 10s, not 60s.
		assert.InDelta(t, 2.0, q.QPS(), 1e-9)
		assert.Equal(t, 20, q.Count())
	})

	t.Run("FullWindow", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_000, 0)}
		q := NewQPSTrackerWithClock(time.Minute, clock.Now)

		for range 120 {
			q.Record()
			clock.Advance(time.Second)
		}
		// Events older than 60s are evicted; divisor is the full window.
		assert.Equal(t, 60, q.Count())
		assert.InDelta(t, 1.0, q.QPS(), 1e-9)
	})

	t.Run("Expired", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_000, 0)}
		q := NewQPSTrackerWithClock(time.Minute, clock.Now)
		q.Record()
		clock.Advance(2 * time.Minute)
		assert.Zero(t, q.QPS())
	})

	t.Run("SameInstant", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_000, 0)}
		q := NewQPSTrackerWithClock(time.Minute, clock.Now)
		q.Record()
		q.Record()
		assert.InDelta(t, 2000.0, q.QPS(), 1e-6)
	})
}

func TestUptimeTracker(t *testing.T) {
	start := time.Unix(1_000, 0)
	now := start.Add(90 * time.Second)
	u := &UptimeTracker{start: start, now: func() time.Time { return now }}

	assert.Equal(t, 90*time.Second, u.Uptime())
	assert.Equal(t, 90.0, u.Seconds())
	assert.Equal(t, start, u.Start())

	assert.GreaterOrEqual(t, NewUptimeTracker().Seconds(), 0.0)
}

func TestBasicObserver(t *testing.T) {
	var o BasicObserver
	var obs Observer = &o

	obs.OnQuery(2*time.Millisecond, 5, 5, nil)
	obs.OnQuery(4*time.Millisecond, 5, 0, errors.New("x"))
	obs.OnLoad(time.Second, 10, 3, nil)
	obs.OnLoad(time.Second, 0, 0, errors.New("x"))
	obs.OnSwap("v001", 10, 3)

	s := o.Stats()
	assert.Equal(t, int64(2), s.QueryCount)
	assert.Equal(t, int64(1), s.QueryErrors)
	assert.Equal(t, int64(3*time.Millisecond), s.QueryAvgNanos)
	assert.Equal(t, int64(2), s.LoadCount)
	assert.Equal(t, int64(1), s.LoadErrors)
	assert.Equal(t, int64(1), s.SwapCount)
	assert.Equal(t, "v001", s.CurrentVersion)
}

func TestMultiObserver(t *testing.T) {
	a, b := &BasicObserver{}, &BasicObserver{}
	m := MultiObserver{a, b, NoopObserver{}}
	m.OnQuery(time.Millisecond, 1, 1, nil)
	m.OnLoad(time.Millisecond, 1, 1, nil)
	m.OnSwap("v001", 1, 1)

	for _, o := range []*BasicObserver{a, b} {
		s := o.Stats()
		assert.Equal(t, int64(1), s.QueryCount)
		assert.Equal(t, int64(1), s.LoadCount)
		assert.Equal(t, int64(1), s.SwapCount)
	}
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	o.OnQuery(time.Millisecond, 10, 10, nil)
	o.OnQuery(time.Millisecond, 10, 0, errors.New("x"))
	o.OnLoad(time.Second, 100, 8, nil)
	o.OnSwap("v001", 100, 8)

	assert.Equal(t, 1.0, testutil.ToFloat64(o.swaps))
	assert.Equal(t, 100.0, testutil.ToFloat64(o.count))
	assert.Equal(t, 8.0, testutil.ToFloat64(o.dim))
	assert.Equal(t, 2, testutil.CollectAndCount(o.queryLatency))

	// Registering twice on the same registry fails.
	_, err = NewPrometheusObserver(reg)
	assert.Error(t, err)
}
