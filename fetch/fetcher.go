// Package fetch retrieves raw artifact bytes for digesting.
//
// The fetcher enforces the size guards: oversized artifacts are rejected
// before and during download instead of buffering unbounded memory, and
// artifacts below the digest engine's minimum length are fetched,
// fingerprinted and classified undigestible rather than discarded
// silently. Retries belong to the calling pipeline, not here.
package fetch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/tlsh"
	"github.com/hupe1980/fuzzyfeed/track"
)

// ErrTooLarge is returned when an artifact exceeds the size cap.
var ErrTooLarge = errors.New("fetch: artifact exceeds maximum size")

// FetchError wraps a transport failure with enough identity for an
// idempotent retry on a later run.
type FetchError struct {
	Source  string
	Path    string
	Version string
	cause   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch: %s %s@%s: %v", e.Source, e.Path, e.Version, e.cause)
}

func (e *FetchError) Unwrap() error { return e.cause }

// Options configures a Fetcher.
type Options struct {
	// MaxArtifactSize is the default byte cap per artifact. Individual
	// fetches may pass a stricter per-source cap.
	MaxArtifactSize int64
}

// DefaultOptions returns the default Fetcher options.
var DefaultOptions = Options{
	MaxArtifactSize: 128 * 1024 * 1024,
}

// Result is a successfully retrieved artifact.
type Result struct {
	// Data is the raw artifact bytes.
	Data []byte

	// Fingerprint is the SHA-256 of Data, for change detection.
	Fingerprint feed.Fingerprint

	// Length is len(Data).
	Length int64

	// Undigestible marks artifacts below the digest minimum length. The
	// bytes are still returned so the pipeline can record the artifact.
	Undigestible bool
}

// Fetcher downloads candidate artifacts with size guards. It is stateless
// and safe for concurrent use.
type Fetcher struct {
	maxSize int64
}

// New creates a Fetcher.
func New(optFns ...func(o *Options)) *Fetcher {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Fetcher{maxSize: opts.MaxArtifactSize}
}

// Fetch retrieves one candidate's bytes. maxSize overrides the default
// cap when positive. Transport failures come back as *FetchError;
// oversized artifacts as an error wrapping ErrTooLarge.
func (f *Fetcher) Fetch(ctx context.Context, source track.Source, candidate track.Candidate, maxSize int64) (*Result, error) {
	if maxSize <= 0 {
		maxSize = f.maxSize
	}

	// Reject before downloading when the platform declared the size.
	if candidate.DeclaredSize > maxSize {
		return nil, fmt.Errorf("%w: %s@%s declares %d bytes (cap %d)",
			ErrTooLarge, candidate.Path, candidate.Version, candidate.DeclaredSize, maxSize)
	}

	body, err := source.Open(ctx, candidate)
	if err != nil {
		return nil, &FetchError{Source: candidate.Source, Path: candidate.Path, Version: candidate.Version, cause: err}
	}
	defer body.Close()

	// Read one byte past the cap to distinguish "exactly at cap" from
	// "over cap" without trusting the declared size.
	data, err := io.ReadAll(io.LimitReader(body, maxSize+1))
	if err != nil {
		return nil, &FetchError{Source: candidate.Source, Path: candidate.Path, Version: candidate.Version, cause: err}
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s@%s exceeds %d bytes", ErrTooLarge, candidate.Path, candidate.Version, maxSize)
	}

	return &Result{
		Data:         data,
		Fingerprint:  sha256.Sum256(data),
		Length:       int64(len(data)),
		Undigestible: len(data) < tlsh.MinInputSize,
	}, nil
}
