// Package fuzzyfeed provides an embedded similarity-digest feed engine
// for tracking released artifacts.
//
// FuzzyFeed maintains an append-only feed of locality-sensitive digests
// computed over artifact releases, with production-ready features
// including:
//
//   - TLSH-style similarity digests with a scored distance function
//   - Append-only feed store with durable, crash-consistent logging
//   - GitHub release tracking with per-source cursors
//   - Concurrent maintenance pipeline with retries and rate limiting
//   - Optional length-bucket banding index for fast match prefiltering
//   - Sample archiving to local disk, S3, or MinIO
//   - Portable TSV export and import for feed exchange
//
// # Quick Start
//
// Open a feed with a durable log and one tracked source:
//
//	ctx := context.Background()
//	src, err := track.NewGitHub(track.SourceConfig{
//	    SourceID:      "github.com/acme/scantool",
//	    ArtifactTypes: []string{"tar.gz", "zip"},
//	})
//	if err != nil {
//	    panic(err)
//	}
//
//	ff, err := fuzzyfeed.Open(
//	    fuzzyfeed.WithFeedLog("./feed"),
//	    fuzzyfeed.WithSource(src, src.Config()),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer ff.Close()
//
// Ingest new releases and hunt for similar binaries:
//
//	summary, err := ff.Ingest(ctx)
//
//	digest, err := ff.Digest(suspiciousBytes)
//	results, err := ff.Match(digest).
//	    MaxDistance(50).
//	    Limit(10).
//	    Execute(ctx)
package fuzzyfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/pipeline"
	"github.com/hupe1980/fuzzyfeed/query"
	"github.com/hupe1980/fuzzyfeed/tlsh"
)

// FuzzyFeed is a similarity-digest feed with tracked sources, durable
// storage, and fuzzy matching.
type FuzzyFeed struct {
	store    *feed.Store
	matcher  *query.Matcher
	pipeline *pipeline.Pipeline
	metrics  MetricsCollector
	logger   *Logger
}

// Open creates a FuzzyFeed instance. Without WithFeedLog the feed lives
// in memory only; with it, existing entries are replayed before Open
// returns.
func Open(optFns ...Option) (*FuzzyFeed, error) {
	opts := applyOptions(optFns)

	var store *feed.Store
	if opts.logPath != "" {
		logOptFns := append([]func(o *feed.LogOptions){
			func(o *feed.LogOptions) {
				o.Path = opts.logPath
			},
		}, opts.logOptions...)

		flog, err := feed.OpenLog(logOptFns...)
		if err != nil {
			return nil, fmt.Errorf("fuzzyfeed: open feed log: %w", err)
		}
		store, err = feed.OpenStore(flog)
		if err != nil {
			_ = flog.Close()
			return nil, fmt.Errorf("fuzzyfeed: replay feed log: %w", err)
		}
		opts.logger.LogReplay(context.Background(), opts.logPath, store.Len(), nil)
	} else {
		store = feed.NewStore()
	}

	matcher := query.NewMatcher(store, func(o *query.Options) {
		o.Banding = opts.banding
	})

	pipelineOptFns := append([]func(o *pipeline.Options){
		func(o *pipeline.Options) {
			o.Cursors = opts.cursors
			o.Archive = opts.archive
			o.Logger = opts.logger.Logger
		},
	}, opts.pipelineOptions...)

	return &FuzzyFeed{
		store:    store,
		matcher:  matcher,
		pipeline: pipeline.New(store, opts.sources, pipelineOptFns...),
		metrics:  opts.metrics,
		logger:   opts.logger,
	}, nil
}

// Digest computes the similarity digest of data.
// Inputs below tlsh.MinInputSize return tlsh.ErrUndigestible.
func (ff *FuzzyFeed) Digest(data []byte) (tlsh.Digest, error) {
	return tlsh.Hash(data)
}

// DigestReader computes the similarity digest of a stream without
// buffering it in memory.
func (ff *FuzzyFeed) DigestReader(r io.Reader) (tlsh.Digest, error) {
	return tlsh.HashReader(r)
}

// Ingest performs one maintenance run over every configured source and
// appends newly discovered artifacts to the feed.
func (ff *FuzzyFeed) Ingest(ctx context.Context) (*pipeline.Summary, error) {
	start := time.Now()
	summary, err := ff.pipeline.Run(ctx)
	ff.metrics.RecordIngest(summary, time.Since(start), err)
	ff.logger.LogIngest(ctx, summary, err)
	return summary, err
}

// Append records one externally produced entry, for callers that digest
// artifacts themselves instead of running the pipeline.
func (ff *FuzzyFeed) Append(entry feed.Entry) error {
	start := time.Now()
	err := ff.store.Append(entry)
	ff.metrics.RecordAppend(time.Since(start), err)
	if err != nil && !errors.Is(err, feed.ErrDuplicate) {
		ff.logger.LogAppend(context.Background(), entry, err)
	}
	return err
}

// Len returns the number of feed entries.
func (ff *FuzzyFeed) Len() int {
	return ff.store.Len()
}

// Store exposes the underlying feed store for read access.
func (ff *FuzzyFeed) Store() *feed.Store {
	return ff.store
}

// Export writes the feed to w in the portable TSV exchange format.
func (ff *FuzzyFeed) Export(w io.Writer) error {
	start := time.Now()
	err := ff.store.Export(w)
	ff.metrics.RecordExport(ff.store.Len(), time.Since(start), err)
	return err
}

// Import merges entries from the TSV exchange format into the feed.
// Entries already present are skipped.
func (ff *FuzzyFeed) Import(r io.Reader) error {
	return ff.store.Import(r)
}

// Close releases resources held by this instance, flushing and closing
// the feed log if one is configured.
func (ff *FuzzyFeed) Close() error {
	if ff == nil {
		return nil
	}
	return ff.store.Close()
}
