// Package backend defines the similarity search contract and its exact
// brute-force implementation.
package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vecserve/snapshot"
)

// Neighbor is one search hit.
type Neighbor struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// Backend answers k-nearest-neighbour queries over one immutable snapshot.
// Implementations must be safe for concurrent SearchKNN calls.
type Backend interface {
	// SearchKNN returns up to k neighbors ordered by descending score.
	// A query of the wrong length yields an empty result.
	SearchKNN(query []float32, k int) []Neighbor
	Count() int
	Dim() int
	Name() string
	// Close releases resources accounted to the backend. Searches that are
	// already running may still complete afterwards.
	Close() error
}

// ErrUnsupportedBackend is returned by New for names without a constructor.
var ErrUnsupportedBackend = errors.New("unsupported backend")

// Constructor builds a backend over a loaded snapshot.
type Constructor func(snap *snapshot.Snapshot) (Backend, error)

// Backend names.
const (
	NameBruteForce = "bruteforce"
	// NameAnnoy is reserved for an approximate backend. It is recognized
	// but has no constructor.
	NameAnnoy = "annoy"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

func init() {
	Register(NameBruteForce, func(snap *snapshot.Snapshot) (Backend, error) {
		return NewBruteForce(snap)
	})
}

// Register installs a constructor under name, replacing any previous one.
func Register(name string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

// Supported reports whether New can build a backend called name.
func Supported(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Names lists the constructible backends, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend called name over snap.
func New(name string, snap *snapshot.Snapshot) (Backend, error) {
	registryMu.RLock()
	c, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}
	return c(snap)
}
