package feed

import (
	"fmt"
	"iter"
	"sync"
)

// Store is the single source of truth for feed entries. Appends are
// serialized; reads run concurrently against a consistent snapshot of the
// entry sequence (the backing array is append-only and existing elements
// are never mutated).
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[Key]int // entry key -> position, duplicate detection
	log     Log         // nil for memory-only stores
}

// NewStore creates a memory-only Store. Useful for tests and for corpora
// rebuilt from an export on every start.
func NewStore() *Store {
	return &Store{
		index: make(map[Key]int),
	}
}

// OpenStore opens a Store backed by the given log, replaying all persisted
// entries into memory. The Store owns the log and closes it on Close.
func OpenStore(log Log) (*Store, error) {
	s := NewStore()
	if err := log.Replay(func(entry Entry) error {
		s.applyLocked(entry)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("feed: replay log: %w", err)
	}
	s.log = log
	return s, nil
}

// applyLocked inserts without duplicate checks; used only during replay
// before the store is published.
func (s *Store) applyLocked(entry Entry) {
	s.index[entry.Key()] = len(s.entries)
	s.entries = append(s.entries, entry)
}

// Append adds one entry to the feed.
//
// Re-appending an identical (source, path, version, fingerprint) tuple
// returns ErrDuplicate and leaves the feed unchanged. A persistence
// failure returns a *StoreWriteError; nothing is applied in memory in
// that case, so the in-memory view never runs ahead of the log.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[entry.Key()]; exists {
		return ErrDuplicate
	}

	if s.log != nil {
		if err := s.log.Append(entry); err != nil {
			return &StoreWriteError{cause: err}
		}
	}
	s.applyLocked(entry)
	return nil
}

// Len returns the number of entries in the feed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Contains reports whether an identical entry is already in the feed.
func (s *Store) Contains(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[key]
	return ok
}

// HasArtifact reports whether any entry exists for (source, path, version),
// regardless of fingerprint. The tracker uses it for change detection.
func (s *Store) HasArtifact(source, path, version string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Source == source && e.Path == path && e.Version == version {
			return true
		}
	}
	return false
}

// LookupArtifact returns every entry recorded for (source, path, version).
// More than one entry exists when content changed under a reused version
// tag; the tracker compares their lengths against a candidate's declared
// size to decide whether a re-fetch is needed.
func (s *Store) LookupArtifact(source, path, version string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Source == source && e.Path == path && e.Version == version {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a consistent prefix of the feed in insertion order.
// The returned slice must not be modified.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[:len(s.entries):len(s.entries)]
}

// LookupBySource returns all entries of one tracked source in insertion
// order.
func (s *Store) LookupBySource(source string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// IterateAll yields every entry in insertion order. The iteration runs
// over a snapshot: appends during iteration are not observed.
func (s *Store) IterateAll() iter.Seq[Entry] {
	snapshot := s.Snapshot()
	return func(yield func(Entry) bool) {
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

// Close closes the backing log, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}
