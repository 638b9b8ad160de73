package fuzzyfeed

import (
	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/fetch"
	"github.com/hupe1980/fuzzyfeed/tlsh"
)

// Stable sentinels of the subpackages, re-exported so facade callers can
// errors.Is against them without extra imports. Typed errors
// (fetch.FetchError, feed.StoreWriteError, track.MalformedSourceError)
// pass through unwrapped and are matched with errors.As where needed.
var (
	// ErrUndigestible is returned when an input is too short to digest.
	ErrUndigestible = tlsh.ErrUndigestible

	// ErrDuplicate is returned when an appended entry is already in the
	// feed. Callers treating appends as idempotent can ignore it.
	ErrDuplicate = feed.ErrDuplicate

	// ErrTooLarge is returned when an artifact exceeds the configured
	// download cap.
	ErrTooLarge = fetch.ErrTooLarge
)
