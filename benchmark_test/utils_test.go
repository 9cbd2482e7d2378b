package benchmark_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/hupe1980/vecserve"
	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/snapshot"
	"github.com/hupe1980/vecserve/testutil"
)

// fixture is an encoded snapshot served from memory.
type fixture struct {
	store   *blobstore.MemoryStore
	name    string
	idsName string
}

func newFixture(b *testing.B, count, dim int, c snapshot.Compression) *fixture {
	b.Helper()
	ctx := context.Background()

	rng := testutil.NewRNG(1)
	vectors := rng.UnitVectors(count, dim)

	var vbuf, ibuf bytes.Buffer
	if err := snapshot.WriteCompressed(&vbuf, dim, vectors, c); err != nil {
		b.Fatalf("write snapshot: %v", err)
	}
	if err := snapshot.WriteIDs(&ibuf, testutil.SequentialIDs(count, "id_%d")); err != nil {
		b.Fatalf("write ids: %v", err)
	}

	f := &fixture{
		store:   blobstore.NewMemoryStore(),
		name:    "bench/vectors.bin" + c.Ext(),
		idsName: "bench/ids.json",
	}
	if err := f.store.Put(ctx, f.name, vbuf.Bytes()); err != nil {
		b.Fatal(err)
	}
	if err := f.store.Put(ctx, f.idsName, ibuf.Bytes()); err != nil {
		b.Fatal(err)
	}
	return f
}

func loadRequest(f *fixture) vecserve.LoadRequest {
	return vecserve.LoadRequest{
		Path:    "mem://" + f.name,
		IDsPath: "mem://" + f.idsName,
	}
}

// service returns a loaded Service over the fixture.
func (f *fixture) service(b *testing.B) *vecserve.Service {
	b.Helper()

	resolver := blobstore.NewResolver()
	resolver.RegisterStore("mem", f.store)

	svc := vecserve.New(vecserve.WithResolver(resolver))
	b.Cleanup(func() { _ = svc.Close() })

	if _, err := svc.Load(context.Background(), loadRequest(f)); err != nil {
		b.Fatalf("load: %v", err)
	}
	return svc
}
