// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("snapshots/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Snapshots are fetched either with ranged GETs (ReadAt) or, when the
// loader asks for the whole object, with the transfer manager's parallel
// downloader. Put goes through the multipart uploader.
package s3
