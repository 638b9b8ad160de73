package track

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Source is the capability interface over a hosting platform: enumerate
// released versions and open artifact bytes. One implementation exists
// per platform, selected by configuration, not inheritance.
type Source interface {
	// ID returns the stable source identifier, e.g. "github.com/owner/repo".
	ID() string

	// ListVersions enumerates released versions oldest-first, each with
	// its candidate artifacts already filtered by the source's allow-list.
	// Enumeration failures are *MalformedSourceError when the upstream
	// answered with unparseable data.
	ListVersions(ctx context.Context) ([]Version, error)

	// Open starts downloading one candidate's bytes. The caller owns the
	// returned reader and must close it. No size guards are applied here;
	// the fetcher enforces them.
	Open(ctx context.Context, candidate Candidate) (io.ReadCloser, error)
}

// Version is one released version of a tracked source.
type Version struct {
	// Tag is the release tag, e.g. "v1.4.0".
	Tag string

	// PublishedAt orders versions; cursors advance along it.
	PublishedAt time.Time

	// Candidates are the release's artifacts that pass the allow-list.
	Candidates []Candidate
}

// Candidate describes one artifact of a release prior to fetching.
type Candidate struct {
	// Source is the owning source identifier.
	Source string

	// Path is the artifact file name within the release.
	Path string

	// Version is the release tag.
	Version string

	// DeclaredSize is the size advertised by the platform, 0 if unknown.
	// The fetcher rejects oversized candidates before downloading when it
	// is known.
	DeclaredSize int64

	// URL is the platform download location.
	URL string
}

// MalformedSourceError reports that a source's enumeration returned data
// that could not be parsed. The source is skipped for the run; other
// sources continue.
type MalformedSourceError struct {
	Source string
	cause  error
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("track: source %s returned malformed data: %v", e.Source, e.cause)
}

func (e *MalformedSourceError) Unwrap() error { return e.cause }

// SourceConfig is the declarative per-source configuration.
type SourceConfig struct {
	// SourceID is the repository coordinate, e.g. "github.com/owner/repo".
	SourceID string

	// ArtifactTypes is the allow-list of file extensions (with or without
	// leading dot) and exact file names to track, e.g. "tar.gz", ".exe",
	// "checksums.txt". Empty allows everything.
	ArtifactTypes []string

	// MinArtifactSize is advisory metadata for operators; artifacts below
	// the digest minimum are always recorded as undigestible regardless.
	MinArtifactSize int64

	// MaxArtifactSize caps downloads. 0 uses the fetcher default.
	MaxArtifactSize int64

	// PollInterval hints how often the source should be re-enumerated.
	// The pipeline itself runs on demand; schedulers read this hint.
	PollInterval time.Duration
}

// Allows reports whether the artifact file name passes the allow-list.
func (c SourceConfig) Allows(name string) bool {
	if len(c.ArtifactTypes) == 0 {
		return true
	}
	base := path.Base(name)
	lower := strings.ToLower(base)
	for _, t := range c.ArtifactTypes {
		t = strings.ToLower(strings.TrimPrefix(t, "."))
		if lower == t || strings.HasSuffix(lower, "."+t) {
			return true
		}
	}
	return false
}
