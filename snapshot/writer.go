package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Write encodes vectors in the snapshot format. Every vector must have
// length dim.
func Write(w io.Writer, dim int, vectors [][]float32) error {
	h := Header{Dim: uint32(dim), Count: uint32(len(vectors))}
	if dim <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if err := h.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], h.Dim)
	binary.LittleEndian.PutUint32(hdr[4:8], h.Count)
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	var b [4]byte
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("snapshot: vector %d has length %d, want %d", i, len(v), dim)
		}
		for _, x := range v {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
			if _, err := bw.Write(b[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteCompressed is Write through the codec c.
func WriteCompressed(w io.Writer, dim int, vectors [][]float32, c Compression) error {
	cw, err := NewCompressor(w, c)
	if err != nil {
		return err
	}
	if err := Write(cw, dim, vectors); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// WriteIDs encodes ids as a single-line JSON array.
func WriteIDs(w io.Writer, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
