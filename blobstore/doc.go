// Package blobstore abstracts where snapshot files are read from.
//
// BlobStore is the read-only interface the snapshot loader consumes.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap support
//   - MemoryStore: in-process blobs, mainly for tests
//   - s3.Store: Amazon S3 (ranged reads, parallel whole-object download)
//   - minio.Store: MinIO and other S3-compatible services
//
// A Resolver turns load paths such as "/data/vectors.bin",
// "s3://bucket/snap/vectors.bin" or "minio://bucket/vectors.bin.zst" into
// a store and a blob name.
//
// Blobs that can expose their whole contents cheaply implement Mappable;
// the loader prefers that path and falls back to ReadAt otherwise.
package blobstore
