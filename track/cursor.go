package track

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrCursorRewind is returned when a Save would move a cursor backwards.
// Cursors only advance; use Reset for an explicit rewind to zero.
var ErrCursorRewind = errors.New("track: cursor may only advance")

// Cursor marks the newest fully-processed version of a tracked source.
// "Fully processed" means every allow-listed artifact of the version was
// appended, recognized as a duplicate, or recorded undigestible; a fetch
// failure pins the cursor before the version so the artifacts stay
// eligible for the next run.
type Cursor struct {
	// Version is the tag of the last fully-processed version.
	Version string `json:"version"`

	// PublishedAt is that version's publish time. Monotonicity is
	// enforced on this field.
	PublishedAt time.Time `json:"published_at"`

	// UpdatedAt is when the cursor last advanced.
	UpdatedAt time.Time `json:"updated_at"`
}

// Behind reports whether the cursor lies before the given version, i.e.
// the version still needs processing.
func (c Cursor) Behind(v Version) bool {
	return c.PublishedAt.Before(v.PublishedAt)
}

// CursorStore persists cursors across pipeline runs.
type CursorStore interface {
	// Load returns the cursor for a source; found is false when the
	// source was never processed.
	Load(ctx context.Context, sourceID string) (cursor Cursor, found bool, err error)

	// Save advances the cursor. Implementations must reject rewinds with
	// ErrCursorRewind so a stale writer can never undo progress.
	Save(ctx context.Context, sourceID string, cursor Cursor) error

	// Reset removes the cursor, making the next run reprocess the source
	// from its oldest version.
	Reset(ctx context.Context, sourceID string) error
}

// FileCursorStore keeps one JSON cursor file per source in a directory.
// Writes go through a temp file and rename, so a crash never leaves a
// half-written cursor behind.
type FileCursorStore struct {
	mu  sync.Mutex
	dir string
}

var _ CursorStore = (*FileCursorStore)(nil)

// NewFileCursorStore creates a cursor store rooted at dir.
func NewFileCursorStore(dir string) (*FileCursorStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("track: create cursor directory: %w", err)
	}
	return &FileCursorStore{dir: dir}, nil
}

func (s *FileCursorStore) path(sourceID string) string {
	// Source IDs contain path separators; flatten for the file name.
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(sourceID)
	return filepath.Join(s.dir, name+".cursor.json")
}

// Load reads the cursor for a source.
func (s *FileCursorStore) Load(_ context.Context, sourceID string) (Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(sourceID)
}

// Save atomically advances the cursor.
func (s *FileCursorStore) Save(ctx context.Context, sourceID string, cursor Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, found, err := s.loadLocked(sourceID)
	if err != nil {
		return err
	}
	if found && cursor.PublishedAt.Before(prev.PublishedAt) {
		return fmt.Errorf("%w: %s at %s, attempted %s", ErrCursorRewind,
			sourceID, prev.PublishedAt.Format(time.RFC3339), cursor.PublishedAt.Format(time.RFC3339))
	}

	raw, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return fmt.Errorf("track: encode cursor: %w", err)
	}

	path := s.path(sourceID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("track: write cursor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("track: rename cursor: %w", err)
	}
	return nil
}

func (s *FileCursorStore) loadLocked(sourceID string) (Cursor, bool, error) {
	raw, err := os.ReadFile(s.path(sourceID))
	if errors.Is(err, os.ErrNotExist) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, fmt.Errorf("track: read cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, false, fmt.Errorf("track: decode cursor for %s: %w", sourceID, err)
	}
	return c, true, nil
}

// Reset removes the cursor file.
func (s *FileCursorStore) Reset(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(sourceID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("track: reset cursor: %w", err)
	}
	return nil
}
