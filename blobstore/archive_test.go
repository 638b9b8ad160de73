package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"testing"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/fuzzyfeed/feed"
)

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	archive := NewArchive(mem)

	data := bytes.Repeat([]byte("compressible sample payload "), 512)
	if err := archive.Put(ctx, "acme/v1.0.0/tool.bin.lz4", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := archive.Open(ctx, "acme/v1.0.0/tool.bin.lz4")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round-trip mismatch")
	}
}

func TestArchiveStoresCompressedFrames(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	archive := NewArchive(mem, WithCompressionLevel(lz4.Level4))

	data := bytes.Repeat([]byte("aaaaaaaaaaaaaaaa"), 4096)
	if err := archive.Put(ctx, "sample.lz4", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := mem.Open(ctx, "sample.lz4")
	if err != nil {
		t.Fatalf("Open raw: %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll raw: %v", err)
	}
	if len(raw) >= len(data) {
		t.Errorf("stored %d bytes for %d input, expected compression", len(raw), len(data))
	}
}

func TestArchiveMissingBlob(t *testing.T) {
	archive := NewArchive(NewMemoryStore())
	_, err := archive.Open(context.Background(), "no/such/blob")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSampleKey(t *testing.T) {
	e := feed.Entry{
		Source:      "acme/scantool",
		Path:        "scantool-linux-amd64",
		Version:     "v2.1.0",
		Fingerprint: sha256.Sum256([]byte("content")),
	}
	key := SampleKey(e)
	want := "acme/scantool/v2.1.0/scantool-linux-amd64.ed7002b439e9ac84.lz4"
	if key != want {
		t.Errorf("SampleKey = %q, want %q", key, want)
	}
}
