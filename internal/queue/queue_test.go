package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK(t *testing.T) {
	t.Run("KeepsHighest", func(t *testing.T) {
		q := NewTopK(3)
		for i, s := range []float32{0.1, 0.9, 0.5, 0.3, 0.7, 0.2} {
			q.Offer(uint32(i), s)
		}
		require.Equal(t, 3, q.Len())

		items := q.Drain()
		require.Len(t, items, 3)
		assert.Equal(t, float32(0.5), items[0].Score)
		assert.Equal(t, float32(0.7), items[1].Score)
		assert.Equal(t, float32(0.9), items[2].Score)
		assert.Equal(t, uint32(1), items[2].Row)
		assert.Equal(t, 0, q.Len())
	})

	t.Run("EqualScoreDoesNotReplace", func(t *testing.T) {
		q := NewTopK(1)
		assert.True(t, q.Offer(0, 0.5))
		assert.False(t, q.Offer(1, 0.5))

		top, ok := q.Min()
		require.True(t, ok)
		assert.Equal(t, uint32(0), top.Row)
	})

	t.Run("ZeroCapacity", func(t *testing.T) {
		for _, k := range []int{0, -3} {
			q := NewTopK(k)
			assert.False(t, q.Offer(0, 1))
			assert.Equal(t, 0, q.Len())
			assert.True(t, q.Full())
		}
	})

	t.Run("Reset", func(t *testing.T) {
		q := NewTopK(2)
		q.Offer(0, 1)
		q.Offer(1, 2)
		q.Reset()
		assert.Equal(t, 0, q.Len())
		_, ok := q.PopMin()
		assert.False(t, ok)
	})
}
