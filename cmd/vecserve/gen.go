package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecserve/blobstore"
	"github.com/hupe1980/vecserve/internal/config"
	"github.com/hupe1980/vecserve/snapshot"
	"github.com/hupe1980/vecserve/testutil"
)

type genOptions struct {
	configPath  string
	out         string
	idsOut      string
	count       int
	dim         int
	clusters    int
	seed        int64
	idPattern   string
	compression string
}

func newGenCmd() *cobra.Command {
	o := &genOptions{}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write a random snapshot and ids file",
		Long: `Generate a snapshot of random unit vectors plus a matching ids file.

The compression codec is taken from --compression or, when unset, from the
output name (.lz4, .zst). Outputs may be local paths or any location the
configured blob stores accept for writing.`,
		Example: `  vecserve gen --out data/tracks.bin --count 10000 --dim 128
  vecserve gen --out data/tracks.bin.zst --clusters 16`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f := cmd.Flag("config"); f != nil {
				o.configPath = f.Value.String()
			}
			return runGen(cmd, o)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&o.out, "out", "o", "", "vectors output location (required)")
	fs.StringVar(&o.idsOut, "ids-out", "", "ids output location (default: <out>.ids.json)")
	fs.IntVarP(&o.count, "count", "n", 1000, "number of vectors")
	fs.IntVarP(&o.dim, "dim", "d", 128, "vector dimension")
	fs.IntVar(&o.clusters, "clusters", 0, "draw vectors around this many centroids, 0 for uniform")
	fs.Int64Var(&o.seed, "seed", 42, "random seed")
	fs.StringVar(&o.idPattern, "id-pattern", "track_%06d", "fmt pattern for ids")
	fs.StringVar(&o.compression, "compression", "", "none, lz4 or zstd")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func (o *genOptions) validate() error {
	var errs []error
	if o.count <= 0 || o.count > snapshot.MaxCount {
		errs = append(errs, fmt.Errorf("count must be in [1, %d], got %d", snapshot.MaxCount, o.count))
	}
	if o.dim <= 0 || o.dim > snapshot.MaxDim {
		errs = append(errs, fmt.Errorf("dim must be in [1, %d], got %d", snapshot.MaxDim, o.dim))
	}
	if o.clusters < 0 {
		errs = append(errs, fmt.Errorf("clusters must not be negative, got %d", o.clusters))
	}
	if !strings.Contains(o.idPattern, "%") {
		errs = append(errs, fmt.Errorf("id-pattern %q has no verb", o.idPattern))
	}
	return errors.Join(errs...)
}

// idsLocation derives "<base>.ids.json" from the vectors location,
// dropping codec and .bin suffixes.
func idsLocation(out string) string {
	base := strings.TrimSuffix(out, snapshot.CompressionFor(out).Ext())
	base = strings.TrimSuffix(base, ".zstd")
	base = strings.TrimSuffix(base, path.Ext(base))
	return base + ".ids.json"
}

func runGen(cmd *cobra.Command, o *genOptions) error {
	if err := o.validate(); err != nil {
		return err
	}

	c := snapshot.CompressionFor(o.out)
	if o.compression != "" {
		var err error
		if c, err = snapshot.ParseCompression(o.compression); err != nil {
			return err
		}
	}
	if o.idsOut == "" {
		o.idsOut = idsLocation(o.out)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	resolver := newResolver(cfg)

	rng := testutil.NewRNG(o.seed)
	var vectors [][]float32
	if o.clusters > 0 {
		vectors = rng.ClusteredVectors(o.count, o.dim, o.clusters, 0.1)
	} else {
		vectors = rng.UnitVectors(o.count, o.dim)
	}

	var vbuf, ibuf bytes.Buffer
	if err := snapshot.WriteCompressed(&vbuf, o.dim, vectors, c); err != nil {
		return err
	}
	if err := snapshot.WriteIDs(&ibuf, testutil.SequentialIDs(o.count, o.idPattern)); err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := put(ctx, resolver, o.out, vbuf.Bytes()); err != nil {
		return err
	}
	if err := put(ctx, resolver, o.idsOut, ibuf.Bytes()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d vectors (dim=%d, compression=%s) to %s\n", o.count, o.dim, c, o.out)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote ids to %s\n", o.idsOut)
	return nil
}

func put(ctx context.Context, r *blobstore.Resolver, location string, data []byte) error {
	store, name, err := r.Resolve(ctx, location)
	if err != nil {
		return err
	}
	w, ok := store.(blobstore.Writer)
	if !ok {
		return fmt.Errorf("location %s is read-only", location)
	}
	if err := w.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", location, err)
	}
	return nil
}
