package track

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileCursorStore_RoundTrip(t *testing.T) {
	store, err := NewFileCursorStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCursorStore failed: %v", err)
	}
	ctx := context.Background()

	if _, found, err := store.Load(ctx, "github.com/acme/tool"); err != nil || found {
		t.Fatalf("expected no cursor, found=%v err=%v", found, err)
	}

	cursor := Cursor{
		Version:     "v1.0.0",
		PublishedAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := store.Save(ctx, "github.com/acme/tool", cursor); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, found, err := store.Load(ctx, "github.com/acme/tool")
	if err != nil || !found {
		t.Fatalf("Load failed: found=%v err=%v", found, err)
	}
	if got.Version != cursor.Version || !got.PublishedAt.Equal(cursor.PublishedAt) {
		t.Errorf("cursor mismatch: got %+v want %+v", got, cursor)
	}
}

func TestFileCursorStore_MonotonicAdvance(t *testing.T) {
	store, err := NewFileCursorStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCursorStore failed: %v", err)
	}
	ctx := context.Background()

	newer := Cursor{Version: "v1.1.0", PublishedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	older := Cursor{Version: "v1.0.0", PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	if err := store.Save(ctx, "src", newer); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "src", older); !errors.Is(err, ErrCursorRewind) {
		t.Fatalf("expected ErrCursorRewind, got %v", err)
	}

	// The stored cursor is untouched by the rejected rewind.
	got, _, err := store.Load(ctx, "src")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Version != "v1.1.0" {
		t.Errorf("cursor rewound to %s", got.Version)
	}

	// Re-saving the same position is idempotent, not a rewind.
	if err := store.Save(ctx, "src", newer); err != nil {
		t.Errorf("idempotent re-save failed: %v", err)
	}
}

func TestFileCursorStore_Reset(t *testing.T) {
	store, err := NewFileCursorStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCursorStore failed: %v", err)
	}
	ctx := context.Background()

	cursor := Cursor{Version: "v2.0.0", PublishedAt: time.Now().UTC()}
	if err := store.Save(ctx, "src", cursor); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Reset(ctx, "src"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, found, _ := store.Load(ctx, "src"); found {
		t.Error("cursor survived Reset")
	}

	// After the explicit reset, an "older" cursor is acceptable again.
	older := Cursor{Version: "v1.0.0", PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := store.Save(ctx, "src", older); err != nil {
		t.Errorf("Save after Reset failed: %v", err)
	}

	// Resetting a missing cursor is a no-op.
	if err := store.Reset(ctx, "never-seen"); err != nil {
		t.Errorf("Reset of unknown source failed: %v", err)
	}
}

func TestCursor_Behind(t *testing.T) {
	cursor := Cursor{PublishedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	past := Version{Tag: "v1", PublishedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	future := Version{Tag: "v2", PublishedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	if cursor.Behind(past) {
		t.Error("cursor should not be behind an already-processed version")
	}
	if !cursor.Behind(future) {
		t.Error("cursor should be behind a newer version")
	}
}
