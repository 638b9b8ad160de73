package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/fuzzyfeed/tlsh"
)

// ErrDuplicate is returned by Append when an identical (source, path,
// version, fingerprint) tuple is already in the feed. It signals a benign
// no-op, not a failure: pipelines count it and move on.
var ErrDuplicate = errors.New("feed: duplicate entry")

// StoreWriteError wraps a persistence failure during append. It is fatal
// for the current pipeline run; entries appended before the failure remain
// valid because appends are atomic per entry.
type StoreWriteError struct {
	cause error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("feed: store write failed: %v", e.cause)
}

func (e *StoreWriteError) Unwrap() error { return e.cause }

// FingerprintSize is the size of the conventional content fingerprint
// (SHA-256), used purely for change detection, distinct from the
// similarity digest.
const FingerprintSize = 32

// Fingerprint is the exact content hash of an artifact.
type Fingerprint [FingerprintSize]byte

// Entry is one immutable feed record: a digested artifact from a tracked
// source.
type Entry struct {
	// Source is the tracked-source identifier (e.g. "github.com/owner/repo").
	Source string

	// Path is the artifact file path within its release.
	Path string

	// Version is the release tag the artifact belongs to.
	Version string

	// Digest is the similarity digest. Zero when Undigestible is set.
	Digest tlsh.Digest

	// Undigestible marks artifacts below the minimum digestible length.
	// They are recorded rather than silently dropped so operators can see
	// that a tool shipped a trivial artifact.
	Undigestible bool

	// Fingerprint is the SHA-256 of the artifact bytes.
	Fingerprint Fingerprint

	// Length is the artifact size in bytes.
	Length int64

	// ComputedAt is the UTC time the digest was computed.
	ComputedAt time.Time
}

// Key returns the uniqueness key of the entry. The fingerprint is part of
// the key: content changed under a reused version tag is a new record,
// not a mutation of the old one.
func (e Entry) Key() Key {
	return Key{
		Source:      e.Source,
		Path:        e.Path,
		Version:     e.Version,
		Fingerprint: e.Fingerprint,
	}
}

// Key identifies an entry for duplicate detection.
type Key struct {
	Source      string
	Path        string
	Version     string
	Fingerprint Fingerprint
}
