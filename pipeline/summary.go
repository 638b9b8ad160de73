package pipeline

import "sync"

// Status classifies the outcome of a run.
type Status int

const (
	// StatusSuccess means every artifact of every source was processed.
	StatusSuccess Status = iota

	// StatusPartial means some artifacts failed but others were recorded.
	StatusPartial

	// StatusFailure means no artifact was recorded and failures occurred.
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Failure records one failed unit of work within a run.
type Failure struct {
	Source  string
	Path    string
	Version string
	Err     error
}

// Summary aggregates the outcome of one pipeline run.
type Summary struct {
	mu sync.Mutex

	// Processed counts entries appended to the feed, undigestible ones
	// included.
	Processed int

	// Undigestible counts appended entries below the digest minimum.
	Undigestible int

	// Duplicates counts artifacts already present in the feed.
	Duplicates int

	// Skipped counts candidates rejected before download, such as
	// oversized artifacts.
	Skipped int

	// FetchFailed counts artifacts whose download failed after retries.
	FetchFailed int

	// StoreFailed counts artifacts whose durable append failed.
	StoreFailed int

	// Failures lists every failed unit with its identity. Fetch and
	// store failures appear here as well as in their counters.
	Failures []Failure
}

func (s *Summary) add(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Summary) fail(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, f)
}

// Status classifies the run. A run with no failures is a success; a run
// that recorded nothing while failing is a failure; everything between
// is partial.
func (s *Summary) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case len(s.Failures) == 0:
		return StatusSuccess
	case s.Processed == 0 && s.Duplicates == 0:
		return StatusFailure
	default:
		return StatusPartial
	}
}
