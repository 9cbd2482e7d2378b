package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"strconv"

	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/internal/math32"
	"github.com/hupe1980/vecserve/resource"
	"golang.org/x/sync/errgroup"
)

// Options configures Load.
type Options struct {
	Logger    *slog.Logger
	Resources *resource.Controller
	// Parallelism bounds the goroutines decoding rows and computing norms.
	Parallelism int
	// IDsStore is where the ids blob lives. Defaults to the vectors store.
	IDsStore blobstore.BlobStore
}

// Option configures Load.
type Option func(*Options)

// WithLogger sets the logger used for ids warnings and load summaries.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithResourceController applies memory and IO limits to the load.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) { o.Resources = rc }
}

// WithIDsStore reads the ids blob from s instead of the vectors store.
func WithIDsStore(s blobstore.BlobStore) Option {
	return func(o *Options) { o.IDsStore = s }
}

// WithParallelism sets the number of decoding goroutines.
func WithParallelism(n int) Option {
	return func(o *Options) { o.Parallelism = n }
}

// rowsPerTask keeps tasks coarse enough that scheduling is negligible.
const rowsPerTask = 4096

// Load reads the vectors blob and the optional ids blob from store.
//
// On failure Load returns a nil snapshot and an error wrapping one of
// ErrInvalidHeader, ErrInvalidDimension, ErrInvalidCount or
// ErrTruncatedData. A missing or malformed ids blob is not an error: it is
// logged and every row gets its default id.
func Load(ctx context.Context, store blobstore.BlobStore, vectorsName, idsName string, optFns ...Option) (*Snapshot, error) {
	opts := Options{
		Logger:      slog.New(slog.DiscardHandler),
		Parallelism: runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.IDsStore == nil {
		opts.IDsStore = store
	}

	blob, err := store.Open(ctx, vectorsName)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrInvalidHeader, vectorsName, err)
	}
	defer blob.Close()

	comp := CompressionFor(vectorsName)

	var snap *Snapshot
	if m, ok := blob.(blobstore.Mappable); ok && comp == CompressionNone {
		data, err := m.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidHeader, vectorsName, err)
		}
		snap, err = decodeBytes(ctx, data, &opts)
		if err != nil {
			return nil, err
		}
	} else {
		snap, err = decodeStream(ctx, blob, comp, &opts)
		if err != nil {
			return nil, err
		}
	}

	snap.IDs = make([]string, snap.Count)
	if idsName != "" {
		ids, err := ReadIDs(ctx, opts.IDsStore, idsName, snap.Count)
		if err != nil {
			opts.Logger.WarnContext(ctx, "ids file unusable, using default ids",
				slog.String("ids_path", idsName),
				slog.String("error", err.Error()))
		} else {
			copy(snap.IDs, ids)
		}
	}
	fillDefaultIDs(snap.IDs)

	if err := snap.Validate(); err != nil {
		snap.Release()
		return nil, err
	}

	opts.Logger.DebugContext(ctx, "snapshot decoded",
		slog.String("path", vectorsName),
		slog.Int("count", snap.Count),
		slog.Int("dim", snap.Dim),
		slog.String("compression", comp.String()),
		slog.Uint64("zero_norm_rows", snap.ZeroNorms().GetCardinality()))

	return snap, nil
}

func decodeHeader(b []byte) Header {
	return Header{
		Dim:   binary.LittleEndian.Uint32(b[0:4]),
		Count: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// reserve charges the payload against the memory budget and returns the
// snapshot. The reservation is held until Snapshot.Release. Vectors and
// Norms are allocated up front only when prealloc is set, which callers do
// once the blob is known to hold the whole payload.
func reserve(ctx context.Context, h Header, opts *Options, prealloc bool) (*Snapshot, error) {
	size := h.PayloadSize()
	if err := opts.Resources.AcquireMemory(ctx, size); err != nil {
		return nil, err
	}

	dim, count := int(h.Dim), int(h.Count)
	rc := opts.Resources
	snap := &Snapshot{
		Dim:     dim,
		Count:   count,
		release: func() { rc.ReleaseMemory(size) },
	}
	if prealloc {
		snap.Vectors = make([]float32, count*dim)
		snap.Norms = make([]float32, count)
	}
	return snap, nil
}

// decodeBytes handles uncompressed blobs whose contents are already in
// memory.
func decodeBytes(ctx context.Context, data []byte, opts *Options) (*Snapshot, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	h := decodeHeader(data)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	payload := data[HeaderSize:]
	if int64(len(payload)) < h.PayloadSize() {
		return nil, fmt.Errorf("%w: have %d payload bytes, want %d", ErrTruncatedData, len(payload), h.PayloadSize())
	}

	snap, err := reserve(ctx, h, opts, true)
	if err != nil {
		return nil, err
	}
	err = forEachRowRange(ctx, snap.Count, opts.Parallelism, func(lo, hi int) {
		vals := snap.Vectors[lo*snap.Dim : hi*snap.Dim]
		src := payload[lo*snap.Dim*4:]
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
		computeNorms(snap, lo, hi)
	})
	if err != nil {
		snap.Release()
		return nil, err
	}
	return snap, nil
}

// decodeStream reads the blob front to back, through the codec named by
// the blob's suffix.
func decodeStream(ctx context.Context, blob blobstore.Blob, comp Compression, opts *Options) (*Snapshot, error) {
	if comp == CompressionNone && blob.Size() < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, blob.Size())
	}

	var src io.Reader = blobstore.NewReader(ctx, blob, 0)
	if opts.Resources != nil {
		src = resource.NewRateLimitedReader(ctx, src, opts.Resources)
	}
	dec, err := newDecompressor(bufio.NewReaderSize(src, 1<<20), comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	defer dec.Close()

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(dec, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	h := decodeHeader(hdr[:])
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if comp == CompressionNone && blob.Size()-HeaderSize < h.PayloadSize() {
		return nil, fmt.Errorf("%w: have %d payload bytes, want %d", ErrTruncatedData, blob.Size()-HeaderSize, h.PayloadSize())
	}

	// A compressed header cannot be checked against the blob size, so its
	// rows are appended as they arrive and a short stream fails before the
	// claimed payload is ever allocated.
	grow := comp != CompressionNone
	snap, err := reserve(ctx, h, opts, !grow)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 256<<10)
	total := snap.Count * snap.Dim
	if grow {
		snap.Vectors = make([]float32, 0, min(total, len(buf)/4))
	}
	for read := 0; read < total; {
		if err := ctx.Err(); err != nil {
			snap.Release()
			return nil, err
		}
		n := min(len(buf)/4, total-read)
		chunk := buf[:n*4]
		if _, err := io.ReadFull(dec, chunk); err != nil {
			snap.Release()
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %d of %d values read", ErrTruncatedData, read, total)
			}
			return nil, err
		}
		if grow {
			for i := range n {
				snap.Vectors = append(snap.Vectors, math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*4:])))
			}
		} else {
			vals := snap.Vectors[read : read+n]
			for i := range vals {
				vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*4:]))
			}
		}
		read += n
	}
	if snap.Norms == nil {
		snap.Norms = make([]float32, snap.Count)
	}

	err = forEachRowRange(ctx, snap.Count, opts.Parallelism, func(lo, hi int) {
		computeNorms(snap, lo, hi)
	})
	if err != nil {
		snap.Release()
		return nil, err
	}
	return snap, nil
}

func computeNorms(snap *Snapshot, lo, hi int) {
	for i := lo; i < hi; i++ {
		snap.Norms[i] = math32.Norm(snap.Vector(i))
	}
}

// forEachRowRange splits [0, count) into contiguous ranges and runs fn on
// them concurrently. Each row is processed by exactly one call.
func forEachRowRange(ctx context.Context, count, parallelism int, fn func(lo, hi int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for lo := 0; lo < count; lo += rowsPerTask {
		hi := min(lo+rowsPerTask, count)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// ReadIDs reads a JSON array of strings. The result always has count
// entries: longer arrays are truncated, shorter ones padded with "".
func ReadIDs(ctx context.Context, store blobstore.BlobStore, name string, count int) ([]string, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	var data []byte
	if m, ok := blob.(blobstore.Mappable); ok {
		data, err = m.Bytes()
	} else {
		data, err = io.ReadAll(blobstore.NewReader(ctx, blob, 0))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var ids []string
	if err := json.Unmarshal(bytes.TrimSpace(data), &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	out := make([]string, count)
	copy(out, ids)
	return out, nil
}

// DefaultID is the id of row i when the ids file does not name it.
func DefaultID(i int) string {
	return "vector_" + strconv.Itoa(i)
}

func fillDefaultIDs(ids []string) {
	for i, id := range ids {
		if id == "" {
			ids[i] = DefaultID(i)
		}
	}
}
