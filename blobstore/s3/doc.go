// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface for archived artifact samples.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "samples/")
//
// # Features
//
//   - Multipart uploads for large samples
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
