// Package vecserve provides an in-memory nearest-neighbour service over
// embedding vectors whose dataset can be replaced at runtime.
//
// A Service holds at most one active generation: an immutable snapshot of
// vectors, their precomputed norms and ids, wrapped in a search backend.
// Load builds a new generation off to the side and publishes it with one
// atomic pointer swap. Queries that are already running keep the
// generation they started with; later queries see the new one.
//
// # Quick Start
//
//	svc := vecserve.New(vecserve.WithLogger(vecserve.NewTextLogger(slog.LevelInfo)))
//	defer svc.Close()
//
//	_, err := svc.Load(ctx, vecserve.LoadRequest{
//	    Path:    "/data/vectors.bin",
//	    IDsPath: "/data/ids.json",
//	})
//
//	res, err := svc.Query(ctx, query, 10)
//	for _, n := range res.Neighbors {
//	    fmt.Println(n.ID, n.Score)
//	}
//
// # Remote Snapshots
//
// Load paths go through a blobstore.Resolver. Register S3 or MinIO
// factories to load from object storage:
//
//	r := blobstore.NewResolver()
//	r.Register("s3", func(ctx context.Context, bucket string) (blobstore.BlobStore, error) {
//	    return s3.New(ctx, bucket)
//	})
//	svc := vecserve.New(vecserve.WithResolver(r))
//	svc.Load(ctx, vecserve.LoadRequest{Path: "s3://my-bucket/snap/vectors.bin.zst"})
//
// # Errors
//
// Every error maps to a stable Code via CodeOf. A failed Load never
// disturbs the active generation, and a failed Query never touches the
// latency or QPS trackers.
//
// # Similarity
//
// Scores are cosine similarities in [-1, 1]. Stored rows with a zero norm
// are never returned, and a zero query returns no neighbors.
package vecserve
