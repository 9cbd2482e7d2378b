package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
)

// ErrUnknownScheme is returned when a location uses a scheme with no
// registered store.
var ErrUnknownScheme = errors.New("blobstore: unknown scheme")

// Factory creates a store for one bucket of a remote scheme.
type Factory func(ctx context.Context, bucket string) (BlobStore, error)

type registration struct {
	factory Factory
	static  BlobStore
}

// Resolver maps load locations onto stores.
//
// Locations without a scheme, and file:// URLs, go to the local store.
// Remote schemes ("s3", "minio") are registered with a Factory and get one
// store per bucket, created on first use and reused afterwards.
// Static stores (for example "mem") see the full host/path as blob name.
type Resolver struct {
	mu      sync.Mutex
	local   BlobStore
	schemes map[string]registration
	buckets map[string]BlobStore // scheme://bucket -> store
}

// NewResolver returns a resolver that only understands local paths.
func NewResolver() *Resolver {
	return &Resolver{
		local:   NewLocalStore(""),
		schemes: make(map[string]registration),
		buckets: make(map[string]BlobStore),
	}
}

// Register installs a per-bucket factory for scheme.
func (r *Resolver) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheme = strings.ToLower(scheme)
	r.schemes[scheme] = registration{factory: f}
	r.dropBuckets(scheme)
}

// RegisterStore installs a single store for scheme.
func (r *Resolver) RegisterStore(scheme string, s BlobStore) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheme = strings.ToLower(scheme)
	r.schemes[scheme] = registration{static: s}
	r.dropBuckets(scheme)
}

func (r *Resolver) dropBuckets(scheme string) {
	prefix := scheme + "://"
	for key := range r.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(r.buckets, key)
		}
	}
}

// Schemes lists the registered remote schemes.
func (r *Resolver) Schemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.schemes))
	for s := range r.schemes {
		out = append(out, s)
	}
	return out
}

// Resolve returns the store and blob name for location.
func (r *Resolver) Resolve(ctx context.Context, location string) (BlobStore, string, error) {
	if location == "" {
		return nil, "", fmt.Errorf("blobstore: empty location")
	}

	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return r.local, location, nil
	}
	scheme = strings.ToLower(scheme)
	if scheme == "file" {
		u, err := url.Parse(location)
		if err != nil {
			return nil, "", fmt.Errorf("blobstore: invalid location %q: %w", location, err)
		}
		return r.local, path.Join(u.Host, u.Path), nil
	}

	bucket, name, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, "", fmt.Errorf("blobstore: location %q has no bucket", location)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.schemes[scheme]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	if reg.static != nil {
		return reg.static, rest, nil
	}
	if name == "" {
		return nil, "", fmt.Errorf("blobstore: location %q has no object key", location)
	}

	key := scheme + "://" + bucket
	if s, ok := r.buckets[key]; ok {
		return s, name, nil
	}
	s, err := reg.factory(ctx, bucket)
	if err != nil {
		return nil, "", fmt.Errorf("blobstore: open %s: %w", key, err)
	}
	r.buckets[key] = s
	return s, name, nil
}
