package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	data := []byte("sample bytes")
	if err := store.Put(ctx, "acme/v1/tool.bin", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := store.Open(ctx, "acme/v1/tool.bin")
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

func TestLocalStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	if err := store.Put(ctx, "blob", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "blob", []byte("v2")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	rc, err := store.Open(ctx, "blob")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "v2" {
		t.Errorf("content = %q, want v2", got)
	}
}

func TestLocalStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	for _, name := range []string{"acme/a.lz4", "acme/b.lz4", "other/c.lz4"} {
		if err := store.Put(ctx, name, []byte(name)); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}

	names, err := store.List(ctx, "acme/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "acme/a.lz4" || names[1] != "acme/b.lz4" {
		t.Errorf("List = %v", names)
	}

	if err := store.Delete(ctx, "acme/a.lz4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "acme/a.lz4"); err != nil {
		t.Errorf("Delete missing should be nil, got %v", err)
	}

	if _, err := store.Open(ctx, "acme/a.lz4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open deleted = %v, want ErrNotFound", err)
	}
}

func TestLocalStoreListEmptyRoot(t *testing.T) {
	store := NewLocalStore(t.TempDir() + "/never-created")
	names, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List = %v, want empty", names)
	}
}
