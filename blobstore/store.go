package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for opening immutable data blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	// It follows io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Writer is implemented by stores that accept new blobs.
// Put replaces any existing blob of the same name as a whole.
type Writer interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Mappable is an optional interface for Blobs that can expose their entire
// contents as a byte slice.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// NewReader returns an io.Reader that reads the blob sequentially from off.
func NewReader(ctx context.Context, b Blob, off int64) io.Reader {
	return &blobReader{ctx: ctx, blob: b, off: off}
}

type blobReader struct {
	ctx  context.Context
	blob Blob
	off  int64
}

func (r *blobReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.off >= r.blob.Size() {
		return 0, io.EOF
	}
	n, err := r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// Defer EOF to the next call, as io.Reader permits.
		err = nil
	}
	return n, err
}
