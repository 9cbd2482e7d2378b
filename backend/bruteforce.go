package backend

import (
	"errors"
	"slices"

	"github.com/hupe1980/vecserve/internal/math32"
	"github.com/hupe1980/vecserve/internal/queue"
	"github.com/hupe1980/vecserve/snapshot"
)

// BruteForce scores every stored vector against the query by cosine
// similarity. It is exact and O(count*dim) per query.
type BruteForce struct {
	snap *snapshot.Snapshot
}

// NewBruteForce wraps snap. The snapshot must not be modified afterwards.
func NewBruteForce(snap *snapshot.Snapshot) (*BruteForce, error) {
	if snap == nil {
		return nil, errors.New("bruteforce: nil snapshot")
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &BruteForce{snap: snap}, nil
}

func (b *BruteForce) Count() int   { return b.snap.Count }
func (b *BruteForce) Dim() int     { return b.snap.Dim }
func (b *BruteForce) Name() string { return NameBruteForce }

// Close releases the snapshot's memory reservation.
func (b *BruteForce) Close() error {
	b.snap.Release()
	return nil
}

// SearchKNN implements Backend.
//
// k is clamped to the row count only when it exceeds it; k <= 0 is passed
// through and produces an empty result. Rows whose norm is zero or
// overflows float32 are never scored, and a query with such a norm yields
// an empty result. Equal scores come back in no particular order.
func (b *BruteForce) SearchKNN(query []float32, k int) []Neighbor {
	s := b.snap
	if len(query) != s.Dim {
		return []Neighbor{}
	}
	if k <= 0 || k > s.Count {
		k = min(s.Count, k)
	}
	if k <= 0 {
		return []Neighbor{}
	}

	qn := math32.Norm(query)
	if qn == 0 || !math32.IsFinite(qn) {
		return []Neighbor{}
	}

	top := queue.NewTopK(k)
	for i := 0; i < s.Count; i++ {
		n := s.Norms[i]
		if n == 0 || !math32.IsFinite(n) {
			continue
		}
		score := math32.Dot(query, s.Vector(i)) / (qn * n)
		if !math32.IsFinite(score) {
			continue
		}
		top.Offer(uint32(i), score)
	}

	items := top.Drain()
	slices.Reverse(items)

	out := make([]Neighbor, len(items))
	for i, it := range items {
		out[i] = Neighbor{ID: s.IDs[it.Row], Score: it.Score}
	}
	return out
}
