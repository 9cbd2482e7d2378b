package snapshot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Format limits.
const (
	HeaderSize = 8
	MaxDim     = 100_000
	MaxCount   = 100_000_000
)

var (
	// ErrInvalidHeader is returned when the vectors blob cannot be opened or
	// is shorter than the header.
	ErrInvalidHeader = errors.New("snapshot: invalid header")
	// ErrInvalidDimension is returned for dim == 0 or dim > MaxDim.
	ErrInvalidDimension = errors.New("snapshot: invalid dimension")
	// ErrInvalidCount is returned for count == 0 or count > MaxCount.
	ErrInvalidCount = errors.New("snapshot: invalid count")
	// ErrTruncatedData is returned when the vector payload is shorter than
	// the header promises.
	ErrTruncatedData = errors.New("snapshot: truncated data")
)

// Header is the fixed prefix of a vectors file.
type Header struct {
	Dim   uint32
	Count uint32
}

// Validate checks the header against the format limits.
func (h Header) Validate() error {
	if h.Dim == 0 || h.Dim > MaxDim {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidDimension, h.Dim, MaxDim)
	}
	if h.Count == 0 || h.Count > MaxCount {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidCount, h.Count, MaxCount)
	}
	return nil
}

// PayloadSize is the number of vector bytes that follow the header.
func (h Header) PayloadSize() int64 {
	return int64(h.Count) * int64(h.Dim) * 4
}

// Snapshot is a fully loaded dataset. It is never modified after Load
// returns and may be shared between goroutines.
type Snapshot struct {
	Dim   int
	Count int
	// Vectors holds Count rows of Dim values, row-major.
	Vectors []float32
	// Norms[i] is the L2 norm of row i.
	Norms []float32
	IDs   []string

	releaseOnce sync.Once
	release     func()
}

// Release returns the memory reserved for the snapshot to the resource
// controller it was loaded with. The data stays readable; Release only
// ends the accounting. Calling it more than once is a no-op.
func (s *Snapshot) Release() {
	s.releaseOnce.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// Vector returns row i. The slice aliases the snapshot and must not be
// modified.
func (s *Snapshot) Vector(i int) []float32 {
	return s.Vectors[i*s.Dim : (i+1)*s.Dim : (i+1)*s.Dim]
}

// Validate checks that the slices agree with Dim and Count.
func (s *Snapshot) Validate() error {
	switch {
	case s.Count <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidCount, s.Count)
	case s.Dim <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidDimension, s.Dim)
	case len(s.Vectors) != s.Count*s.Dim:
		return fmt.Errorf("%w: have %d values, want %d", ErrTruncatedData, len(s.Vectors), s.Count*s.Dim)
	case len(s.Norms) != s.Count:
		return fmt.Errorf("snapshot: %d norms for %d rows", len(s.Norms), s.Count)
	case len(s.IDs) != s.Count:
		return fmt.Errorf("snapshot: %d ids for %d rows", len(s.IDs), s.Count)
	}
	return nil
}

// SizeBytes approximates the memory held by the snapshot.
func (s *Snapshot) SizeBytes() int64 {
	n := int64(len(s.Vectors))*4 + int64(len(s.Norms))*4
	for _, id := range s.IDs {
		n += int64(len(id)) + 16
	}
	return n
}

// ZeroNorms returns the rows whose norm is exactly zero. Those rows can
// never be returned by a cosine search.
func (s *Snapshot) ZeroNorms() *roaring.Bitmap {
	bm := roaring.New()
	for i, n := range s.Norms {
		if n == 0 {
			bm.Add(uint32(i))
		}
	}
	return bm
}
