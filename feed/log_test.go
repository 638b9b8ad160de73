package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func reopen(t *testing.T, dir string, compress bool) (*Store, *FileLog) {
	t.Helper()

	log, err := OpenLog(func(o *LogOptions) {
		o.Path = dir
		o.Compress = compress
	})
	if err != nil {
		t.Fatalf("OpenLog failed: %v", err)
	}
	store, err := OpenStore(log)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	return store, log
}

func TestFileLog_PersistAcrossReopen(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "zstd"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			store, _ := reopen(t, dir, compress)
			want := []Entry{
				testEntry(t, "github.com/acme/tool", "bin/a", "v1.0.0", payload(1, 500)),
				testEntry(t, "github.com/acme/tool", "bin/b", "v1.1.0", payload(2, 800)),
				testEntry(t, "github.com/other/kit", "tiny", "v4", payload(3, 5)),
			}
			for _, e := range want {
				if err := store.Append(e); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}
			if err := store.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			restored, _ := reopen(t, dir, compress)
			defer restored.Close()

			got := restored.Snapshot()
			if len(got) != len(want) {
				t.Fatalf("expected %d entries after reopen, got %d", len(want), len(got))
			}
			for i := range want {
				if got[i].Key() != want[i].Key() {
					t.Errorf("entry %d key mismatch:\n got %+v\nwant %+v", i, got[i].Key(), want[i].Key())
				}
				if got[i].Digest != want[i].Digest || got[i].Undigestible != want[i].Undigestible {
					t.Errorf("entry %d digest mismatch", i)
				}
				if got[i].Length != want[i].Length || !got[i].ComputedAt.Equal(want[i].ComputedAt) {
					t.Errorf("entry %d length/timestamp mismatch:\n got %+v\nwant %+v", i, got[i], want[i])
				}
			}

			// Duplicate detection must survive the reopen.
			if err := restored.Append(want[0]); err != ErrDuplicate {
				t.Errorf("expected ErrDuplicate after reopen, got %v", err)
			}
		})
	}
}

func TestFileLog_AppendAfterReopen(t *testing.T) {
	dir := t.TempDir()

	store, _ := reopen(t, dir, false)
	if err := store.Append(testEntry(t, "s", "a", "v1", payload(1, 100))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store, _ = reopen(t, dir, false)
	if err := store.Append(testEntry(t, "s", "b", "v2", payload(2, 100))); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store, _ = reopen(t, dir, false)
	defer store.Close()
	if store.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", store.Len())
	}
}

func TestFileLog_TornTailIgnored(t *testing.T) {
	dir := t.TempDir()

	store, log := reopen(t, dir, false)
	if err := store.Append(testEntry(t, "s", "a", "v1", payload(1, 100))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	path := log.FilePath()
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulate a crash mid-append: garbage length prefix and a partial
	// record at the tail.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.Write([]byte{0x40, 0x00, 0x00, 0x00, 0xde, 0xad}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restored, _ := reopen(t, dir, false)
	defer restored.Close()
	if restored.Len() != 1 {
		t.Errorf("expected the consistent prefix of 1 entry, got %d", restored.Len())
	}
}

func TestFileLog_RejectsForeignFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "feed.log"), []byte("not a feed log at all"), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := OpenLog(func(o *LogOptions) { o.Path = dir }); err == nil {
		t.Error("expected error opening a non-log file")
	}
}
