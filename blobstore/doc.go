// Package blobstore provides storage abstraction for archived artifact
// samples.
//
// BlobStore is the interface for writing and reading immutable blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with atomic writes
//   - MemoryStore: in-memory store for testing
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Sample Archiving
//
// Archive wraps any BlobStore and transparently compresses samples with
// LZ4 framing, so archived artifacts stay cheap to store while remaining
// streamable on retrieval:
//
//	archive := blobstore.NewArchive(blobstore.NewLocalStore("/var/lib/fuzzyfeed/samples"))
//	err := archive.Put(ctx, blobstore.SampleKey(entry), data)
package blobstore
