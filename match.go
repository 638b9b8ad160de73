// This file implements a fluent match API for querying the feed.

package fuzzyfeed

import (
	"context"
	"time"

	"github.com/hupe1980/fuzzyfeed/query"
	"github.com/hupe1980/fuzzyfeed/tlsh"
)

// Match creates a new fluent match builder for the given digest.
//
// Example:
//
//	results, err := ff.Match(digest).
//	    MaxDistance(50).
//	    Limit(10).
//	    Execute(ctx)
func (ff *FuzzyFeed) Match(digest tlsh.Digest) *MatchBuilder {
	return &MatchBuilder{
		ff:          ff,
		digest:      digest,
		maxDistance: -1, // unlimited
	}
}

// MatchBuilder is a fluent builder for constructing match queries.
type MatchBuilder struct {
	ff          *FuzzyFeed
	digest      tlsh.Digest
	maxDistance int
	limit       int
	source      string
}

// MaxDistance sets the inclusive distance threshold. Negative means
// unlimited; 0 matches structurally identical digests only.
func (mb *MatchBuilder) MaxDistance(d int) *MatchBuilder {
	mb.maxDistance = d
	return mb
}

// Limit caps the number of results. 0 returns everything within the
// threshold.
func (mb *MatchBuilder) Limit(n int) *MatchBuilder {
	mb.limit = n
	return mb
}

// Source restricts results to one source identifier.
func (mb *MatchBuilder) Source(sourceID string) *MatchBuilder {
	mb.source = sourceID
	return mb
}

// Execute runs the match and returns results ordered by ascending
// distance.
func (mb *MatchBuilder) Execute(ctx context.Context) ([]query.Result, error) {
	start := time.Now()

	results, err := mb.ff.matcher.Match(ctx, mb.digest, mb.maxDistance)
	if err != nil {
		mb.ff.metrics.RecordMatch(0, time.Since(start), err)
		mb.ff.logger.LogMatch(ctx, mb.maxDistance, 0, err)
		return nil, err
	}

	if mb.source != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Entry.Source == mb.source {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if mb.limit > 0 && len(results) > mb.limit {
		results = results[:mb.limit]
	}

	mb.ff.metrics.RecordMatch(len(results), time.Since(start), nil)
	mb.ff.logger.LogMatch(ctx, mb.maxDistance, len(results), nil)
	return results, nil
}

// MustExecute runs the match, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (mb *MatchBuilder) MustExecute(ctx context.Context) []query.Result {
	results, err := mb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}
