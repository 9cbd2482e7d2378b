package integration_test

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecserve"
	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/snapshot"
	"github.com/hupe1980/vecserve/testutil"
)

// Exact search must agree with a float64 reference for every codec. Scores
// are compared position by position so float32 near-ties at the k boundary
// cannot flip the result.
func TestExactSearch_MatchesReference(t *testing.T) {
	t.Parallel()

	const (
		dim  = 64
		size = 5000
		k    = 10
	)

	for _, c := range []snapshot.Compression{
		snapshot.CompressionNone,
		snapshot.CompressionLZ4,
		snapshot.CompressionZSTD,
	} {
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			rng := testutil.NewRNG(42)
			vectors := rng.ClusteredVectors(size, dim, 20, 0.2)

			var vbuf, ibuf bytes.Buffer
			require.NoError(t, snapshot.WriteCompressed(&vbuf, dim, vectors, c))
			require.NoError(t, snapshot.WriteIDs(&ibuf, testutil.SequentialIDs(size, "%d")))

			mem := blobstore.NewMemoryStore()
			require.NoError(t, mem.Put(ctx, "v.bin"+c.Ext(), vbuf.Bytes()))
			require.NoError(t, mem.Put(ctx, "ids.json", ibuf.Bytes()))

			resolver := blobstore.NewResolver()
			resolver.RegisterStore("mem", mem)

			svc := vecserve.New(vecserve.WithResolver(resolver))
			t.Cleanup(func() { _ = svc.Close() })

			_, err := svc.Load(ctx, vecserve.LoadRequest{Path: "mem://v.bin" + c.Ext(), IDsPath: "mem://ids.json"})
			require.NoError(t, err)

			for q := 0; q < 20; q++ {
				query := rng.UnitVector(dim)
				truth := testutil.ExactCosineTopK(query, vectors, k)

				res, err := svc.Query(ctx, query, k)
				require.NoError(t, err)
				require.Len(t, res.Neighbors, k)

				rows := make([]int, len(res.Neighbors))
				for i, n := range res.Neighbors {
					rows[i], err = strconv.Atoi(n.ID)
					require.NoError(t, err)
					if i > 0 {
						require.GreaterOrEqual(t, res.Neighbors[i-1].Score, n.Score)
					}
				}
				for i := range truth {
					require.InDelta(t, truth[i].Score, res.Neighbors[i].Score, 1e-4, "query %d rank %d", q, i)
				}
				require.GreaterOrEqual(t, testutil.ComputeRecall(truth, rows), 0.9, "query %d", q)
			}
		})
	}
}
