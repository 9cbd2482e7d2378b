package metrics

import (
	"sync/atomic"
	"time"
)

// Observer receives service events. Implement it to integrate with a
// monitoring system. Methods are called synchronously on the request path
// and must be cheap and safe for concurrent use.
type Observer interface {
	// OnQuery is called after every query, failed or not. n is the number
	// of neighbors returned.
	OnQuery(d time.Duration, k, n int, err error)
	// OnLoad is called after every load attempt.
	OnLoad(d time.Duration, count, dim int, err error)
	// OnSwap is called after a new generation is published.
	OnSwap(version string, count, dim int)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) OnQuery(time.Duration, int, int, error) {}
func (NoopObserver) OnLoad(time.Duration, int, int, error)  {}
func (NoopObserver) OnSwap(string, int, int)                {}

// BasicObserver counts events in memory.
type BasicObserver struct {
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	SwapCount       atomic.Int64
	version         atomic.Value // string
}

// OnQuery implements Observer.
func (b *BasicObserver) OnQuery(d time.Duration, _, _ int, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(d.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// OnLoad implements Observer.
func (b *BasicObserver) OnLoad(_ time.Duration, _, _ int, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// OnSwap implements Observer.
func (b *BasicObserver) OnSwap(version string, _, _ int) {
	b.SwapCount.Add(1)
	b.version.Store(version)
}

// BasicStats is a point-in-time copy of BasicObserver.
type BasicStats struct {
	QueryCount     int64
	QueryErrors    int64
	QueryAvgNanos  int64
	LoadCount      int64
	LoadErrors     int64
	SwapCount      int64
	CurrentVersion string
}

// Stats returns the current counters.
func (b *BasicObserver) Stats() BasicStats {
	s := BasicStats{
		QueryCount:  b.QueryCount.Load(),
		QueryErrors: b.QueryErrors.Load(),
		LoadCount:   b.LoadCount.Load(),
		LoadErrors:  b.LoadErrors.Load(),
		SwapCount:   b.SwapCount.Load(),
	}
	if s.QueryCount > 0 {
		s.QueryAvgNanos = b.QueryTotalNanos.Load() / s.QueryCount
	}
	if v, ok := b.version.Load().(string); ok {
		s.CurrentVersion = v
	}
	return s
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) OnQuery(d time.Duration, k, n int, err error) {
	for _, o := range m {
		o.OnQuery(d, k, n, err)
	}
}

func (m MultiObserver) OnLoad(d time.Duration, count, dim int, err error) {
	for _, o := range m {
		o.OnLoad(d, count, dim, err)
	}
}

func (m MultiObserver) OnSwap(version string, count, dim int) {
	for _, o := range m {
		o.OnSwap(version, count, dim)
	}
}
