// Package queue provides the bounded heap used to collect top-k candidates.
package queue

// Item is a candidate row and its similarity score.
type Item struct {
	Row   uint32  // Row is the position of the vector in its snapshot.
	Score float32 // Score is the priority of the item in the queue.
}

// TopK keeps the k highest-scoring items seen so far.
//
// Internally it is a min-heap keyed by Score: the root is the weakest
// retained candidate, so a new candidate only has to beat the root.
// Value-based storage, no pointer indirection.
type TopK struct {
	k     int
	items []Item
}

// NewTopK returns an empty collector that retains at most k items.
// A non-positive k yields a collector that never retains anything.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{
		k:     k,
		items: make([]Item, 0, k),
	}
}

// Len returns the number of retained items.
func (q *TopK) Len() int { return len(q.items) }

// Full reports whether k items are retained.
func (q *TopK) Full() bool { return len(q.items) >= q.k }

// Min returns the weakest retained item.
func (q *TopK) Min() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Offer considers a candidate. While the collector has room the candidate is
// always kept; once full, it replaces the current minimum only if its score
// is strictly greater. Returns whether the candidate was retained.
func (q *TopK) Offer(row uint32, score float32) bool {
	if q.k == 0 {
		return false
	}
	if len(q.items) < q.k {
		q.items = append(q.items, Item{Row: row, Score: score})
		q.siftUp(len(q.items) - 1)
		return true
	}
	if score > q.items[0].Score {
		q.items[0] = Item{Row: row, Score: score}
		q.siftDown(0)
		return true
	}
	return false
}

// PopMin removes and returns the weakest retained item.
func (q *TopK) PopMin() (Item, bool) {
	n := len(q.items)
	if n == 0 {
		return Item{}, false
	}
	root := q.items[0]
	last := q.items[n-1]
	q.items = q.items[:n-1]
	if n-1 > 0 {
		q.items[0] = last
		q.siftDown(0)
	}
	return root, true
}

// Drain empties the collector and returns its items in heap extraction
// order (ascending score).
func (q *TopK) Drain() []Item {
	out := make([]Item, 0, len(q.items))
	for {
		it, ok := q.PopMin()
		if !ok {
			return out
		}
		out = append(out, it)
	}
}

// Reset clears the collector for reuse.
func (q *TopK) Reset() {
	q.items = q.items[:0]
}

func (q *TopK) less(i, j int) bool {
	return q.items[i].Score < q.items[j].Score
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && q.less(r, l) {
			best = r
		}
		if !q.less(best, i) {
			return
		}
		q.items[i], q.items[best] = q.items[best], q.items[i]
		i = best
	}
}
