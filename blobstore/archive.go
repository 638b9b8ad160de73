package blobstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/fuzzyfeed/feed"
)

// SampleKey derives the canonical archive key for a feed entry. Samples
// are laid out as source/version/path.<fingerprint-prefix>.lz4 so the
// same artifact path may be archived once per content revision.
func SampleKey(e feed.Entry) string {
	return fmt.Sprintf("%s.%s.lz4",
		path.Join(e.Source, e.Version, e.Path),
		hex.EncodeToString(e.Fingerprint[:8]))
}

// Archive wraps a BlobStore and transparently applies LZ4 frame
// compression to stored blobs. Samples compress well and LZ4 keeps
// retrieval cheap compared to heavier codecs.
type Archive struct {
	store BlobStore
	level lz4.CompressionLevel
}

// NewArchive creates a compressing wrapper around store.
func NewArchive(store BlobStore, optFns ...func(a *Archive)) *Archive {
	a := &Archive{store: store, level: lz4.Fast}
	for _, fn := range optFns {
		fn(a)
	}
	return a
}

// WithCompressionLevel sets the LZ4 compression level.
func WithCompressionLevel(level lz4.CompressionLevel) func(a *Archive) {
	return func(a *Archive) {
		a.level = level
	}
}

// Put compresses data and writes it to the underlying store.
func (a *Archive) Put(ctx context.Context, name string, data []byte) error {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(a.level)); err != nil {
		return fmt.Errorf("blobstore: configure lz4: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("blobstore: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("blobstore: finish frame: %w", err)
	}
	return a.store.Put(ctx, name, buf.Bytes())
}

// Open returns a reader over the decompressed blob.
func (a *Archive) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := a.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &archiveReader{zr: lz4.NewReader(rc), rc: rc}, nil
}

// List returns all blob names with the given prefix, sorted.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	return a.store.List(ctx, prefix)
}

// Delete removes a blob.
func (a *Archive) Delete(ctx context.Context, name string) error {
	return a.store.Delete(ctx, name)
}

type archiveReader struct {
	zr *lz4.Reader
	rc io.ReadCloser
}

func (r *archiveReader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

func (r *archiveReader) Close() error {
	return r.rc.Close()
}
