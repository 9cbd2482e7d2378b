package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/resource"
	"github.com/hupe1980/vecserve/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, dim int, vectors [][]float32, c Compression) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteCompressed(&buf, dim, vectors, c))
	return buf.Bytes()
}

func rawHeader(dim, count uint32) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], dim)
	binary.LittleEndian.PutUint32(b[4:8], count)
	return b
}

func TestLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(1)
	vectors := rng.UniformRangeVectors(10_000, 16)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			name := "vectors.bin" + c.Ext()
			require.NoError(t, store.Put(ctx, name, encode(t, 16, vectors, c)))

			snap, err := Load(ctx, store, name, "", WithParallelism(3))
			require.NoError(t, err)
			require.NoError(t, snap.Validate())

			assert.Equal(t, 16, snap.Dim)
			assert.Equal(t, 10_000, snap.Count)
			assert.Equal(t, vectors[42], snap.Vector(42))
			assert.Equal(t, vectors[9_999], snap.Vector(9_999))
			assert.Equal(t, "vector_0", snap.IDs[0])
			assert.Equal(t, "vector_9999", snap.IDs[9_999])

			for _, i := range []int{0, 4095, 4096, 9_999} {
				var sum float64
				for _, x := range vectors[i] {
					sum += float64(x) * float64(x)
				}
				assert.InDelta(t, math.Sqrt(sum), snap.Norms[i], 1e-4)
			}
		})
	}
}

func TestLoad_LocalFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.bin"), encode(t, 3, vectors, CompressionNone), 0o600))

	snap, err := Load(ctx, blobstore.NewLocalStore(dir), "v.bin", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, snap.Vector(1))
	assert.Equal(t, float32(1), snap.Norms[0])
}

func TestLoad_IDs(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "v.bin", encode(t, 2, [][]float32{{1, 0}, {0, 1}, {1, 1}}, CompressionNone)))

	tests := []struct {
		name string
		ids  string
		want []string
	}{
		{"Exact", `["a","b","c"]`, []string{"a", "b", "c"}},
		{"Short", `["a"]`, []string{"a", "vector_1", "vector_2"}},
		{"Long", `["a","b","c","d"]`, []string{"a", "b", "c"}},
		{"EmptyEntry", `["a","","c"]`, []string{"a", "vector_1", "c"}},
		{"Malformed", `not json`, []string{"vector_0", "vector_1", "vector_2"}},
		{"WrongType", `{"a":1}`, []string{"vector_0", "vector_1", "vector_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "ids.json", []byte(tt.ids)))
			snap, err := Load(ctx, store, "v.bin", "ids.json")
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.IDs)
		})
	}

	t.Run("Missing", func(t *testing.T) {
		snap, err := Load(ctx, store, "v.bin", "nope.json")
		require.NoError(t, err)
		assert.Equal(t, []string{"vector_0", "vector_1", "vector_2"}, snap.IDs)
	})
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	put := func(name string, data []byte) {
		require.NoError(t, store.Put(ctx, name, data))
	}
	put("short.bin", []byte{1, 2, 3})
	put("zero-dim.bin", rawHeader(0, 1))
	put("huge-dim.bin", rawHeader(MaxDim+1, 1))
	put("zero-count.bin", rawHeader(2, 0))
	put("huge-count.bin", rawHeader(2, MaxCount+1))
	put("truncated.bin", append(rawHeader(2, 2), make([]byte, 12)...))

	// A valid stream whose header promises more rows than it holds.
	hdr := encode(t, 2, [][]float32{{1, 2}, {3, 4}, {5, 6}}, CompressionNone)
	compress := func(c Compression, data []byte) []byte {
		var b bytes.Buffer
		cw, err := NewCompressor(&b, c)
		require.NoError(t, err)
		_, err = cw.Write(data)
		require.NoError(t, err)
		require.NoError(t, cw.Close())
		return b.Bytes()
	}
	put("truncated.bin.zst", compress(CompressionZSTD, hdr[:HeaderSize+8]))

	// Headers claiming ~400 GB behind a few compressed bytes must fail on
	// the short stream, not on the allocation.
	put("header-only.bin.zst", compress(CompressionZSTD, rawHeader(100_000, 1_000_000)))
	put("header-only.bin.lz4", compress(CompressionLZ4, rawHeader(100_000, 1_000_000)))

	tests := []struct {
		name string
		want error
	}{
		{"missing.bin", ErrInvalidHeader},
		{"short.bin", ErrInvalidHeader},
		{"zero-dim.bin", ErrInvalidDimension},
		{"huge-dim.bin", ErrInvalidDimension},
		{"zero-count.bin", ErrInvalidCount},
		{"huge-count.bin", ErrInvalidCount},
		{"truncated.bin", ErrTruncatedData},
		{"truncated.bin.zst", ErrTruncatedData},
		{"header-only.bin.zst", ErrTruncatedData},
		{"header-only.bin.lz4", ErrTruncatedData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Load(ctx, store, tt.name, "")
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("MissingWrapsNotFound", func(t *testing.T) {
		_, err := Load(ctx, store, "missing.bin", "")
		assert.True(t, errors.Is(err, blobstore.ErrNotFound))
	})
}

func TestLoad_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "v.bin", encode(t, 4, [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}, CompressionNone)))

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 16})
	_, err := Load(ctx, store, "v.bin", "", WithResourceController(rc))
	var memErr *resource.ErrMemoryLimit
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, int64(32), memErr.Requested)
	assert.Zero(t, rc.MemoryUsage())

	rc = resource.NewController(resource.Config{MemoryLimitBytes: 64})
	snap, err := Load(ctx, store, "v.bin", "", WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, int64(32), rc.MemoryUsage())

	snap.Release()
	snap.Release()
	assert.Zero(t, rc.MemoryUsage())
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, blobstore.NewLocalStore(t.TempDir()), "v.bin", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshot_ZeroNorms(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "v.bin", encode(t, 2, [][]float32{{0, 0}, {1, 0}, {0, 0}}, CompressionNone)))

	snap, err := Load(ctx, store, "v.bin", "")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, snap.ZeroNorms().ToArray())
	assert.Greater(t, snap.SizeBytes(), int64(0))
}

func TestWrite_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Write(&buf, 0, [][]float32{{}}), ErrInvalidDimension)
	assert.ErrorIs(t, Write(&buf, 2, nil), ErrInvalidCount)
	assert.Error(t, Write(&buf, 2, [][]float32{{1, 2}, {3}}))
}

func TestWriteIDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIDs(&buf, []string{"track_000000", "track_000001"}))
	assert.Equal(t, "[\"track_000000\",\"track_000001\"]\n", buf.String())

	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "ids.json", buf.Bytes()))
	ids, err := ReadIDs(ctx, store, "ids.json", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"track_000000", "track_000001", ""}, ids)
}

func TestCompression(t *testing.T) {
	assert.Equal(t, CompressionZSTD, CompressionFor("a/b.bin.zst"))
	assert.Equal(t, CompressionLZ4, CompressionFor("b.bin.lz4"))
	assert.Equal(t, CompressionNone, CompressionFor("b.bin"))

	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)
	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}
