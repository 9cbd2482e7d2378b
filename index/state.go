// Package index holds the active search generation and publishes new ones
// atomically.
//
// Readers take the current generation with one atomic load and keep using
// it for as long as they need; a concurrent Swap never mutates a
// generation that has been handed out. Old generations are reclaimed by
// the garbage collector once the last reader drops them.
package index

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecserve/backend"
)

// ErrEmptyBackend is returned by Swap for a nil backend or one without rows.
var ErrEmptyBackend = errors.New("index: backend is empty")

// Status values.
const (
	StatusReady = "ready"
	StatusEmpty = "empty"
)

// Metadata describes a generation.
type Metadata struct {
	Backend  string
	Metric   string
	Version  string
	Dim      int
	Count    int
	LoadedAt time.Time
}

// Generation is a backend together with its metadata. It is immutable.
type Generation struct {
	Searcher backend.Backend
	Metadata
}

// State is the single slot holding the active generation.
// The zero value is an empty state ready to use.
type State struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Generation]
	seq     uint64
	now     func() time.Time
}

// Swap publishes b as the active generation and returns it together with
// the generation it replaced (nil if the state was empty).
func (s *State) Swap(b backend.Backend, backendName, metric string) (next, prev *Generation, err error) {
	if b == nil || b.Count() == 0 {
		return nil, nil, ErrEmptyBackend
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	s.seq++
	next = &Generation{
		Searcher: b,
		Metadata: Metadata{
			Backend:  backendName,
			Metric:   metric,
			Version:  fmt.Sprintf("v%03d", s.seq),
			Dim:      b.Dim(),
			Count:    b.Count(),
			LoadedAt: now(),
		},
	}
	prev = s.current.Swap(next)
	return next, prev, nil
}

// Current returns the active generation.
func (s *State) Current() (*Generation, bool) {
	g := s.current.Load()
	return g, g != nil
}

// Status reports StatusReady when a generation is active.
func (s *State) Status() string {
	if s.current.Load() == nil {
		return StatusEmpty
	}
	return StatusReady
}

// Reset drops the active generation and returns it.
func (s *State) Reset() *Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Swap(nil)
}
