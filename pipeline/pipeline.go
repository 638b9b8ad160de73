package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/fuzzyfeed/blobstore"
	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/fetch"
	"github.com/hupe1980/fuzzyfeed/tlsh"
	"github.com/hupe1980/fuzzyfeed/track"
)

// defaultBufferWeight is the buffer reservation for candidates whose
// size the platform did not declare.
const defaultBufferWeight = 8 * 1024 * 1024

// SourceBinding pairs a source with its declarative configuration.
type SourceBinding struct {
	Source track.Source
	Config track.SourceConfig
}

// Options configures a Pipeline.
type Options struct {
	// Workers sizes the shared artifact worker pool. Values below 1
	// default to GOMAXPROCS.
	Workers int

	// Resources bounds buffer memory and upstream request rate.
	Resources ResourceConfig

	// Retry is applied to version enumeration and artifact fetches.
	Retry RetryPolicy

	// ArtifactTimeout bounds one artifact's fetch and digest. 0 means
	// no per-artifact deadline.
	ArtifactTimeout time.Duration

	// Cursors persists per-source progress. Nil keeps runs stateless
	// and reprocesses everything.
	Cursors track.CursorStore

	// Archive, when set, receives a copy of every newly recorded
	// artifact sample. Archive failures are logged, never fatal.
	Archive blobstore.BlobStore

	// Fetch customizes the artifact fetcher.
	Fetch []func(o *fetch.Options)

	// Logger receives structured run logs. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the default Pipeline options.
var DefaultOptions = Options{
	Retry:           DefaultRetryPolicy,
	ArtifactTimeout: 5 * time.Minute,
}

// Pipeline drives feed maintenance runs over a fixed set of sources.
type Pipeline struct {
	store   *feed.Store
	sources []SourceBinding
	fetcher *fetch.Fetcher
	opts    Options
	logger  *slog.Logger
}

// New creates a Pipeline appending into store.
func New(store *feed.Store, sources []SourceBinding, optFns ...func(o *Options)) *Pipeline {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		store:   store,
		sources: sources,
		fetcher: fetch.New(opts.Fetch...),
		opts:    opts,
		logger:  logger,
	}
}

// Run performs one maintenance pass over every source. Operational
// failures are collected into the Summary; the returned error is
// non-nil only when the run was cut short, by ctx or by a store write
// failure. A store write failure cancels all in-flight work: once the
// log stops accepting appends, continuing only burns bandwidth.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	pool := NewWorkerPool(p.opts.Workers)
	defer pool.Close()

	ctrl := NewController(p.opts.Resources)

	start := time.Now()
	runCtx, fatal := context.WithCancelCause(ctx)
	defer fatal(nil)

	g, gctx := errgroup.WithContext(runCtx)
	for _, binding := range p.sources {
		g.Go(func() error {
			return p.runSource(gctx, binding, pool, ctrl, summary, fatal)
		})
	}
	err := g.Wait()
	if cause := context.Cause(runCtx); cause != nil && ctx.Err() == nil {
		err = cause
	}

	p.logger.InfoContext(ctx, "run completed",
		"status", summary.Status().String(),
		"processed", summary.Processed,
		"duplicates", summary.Duplicates,
		"fetch_failed", summary.FetchFailed,
		"duration", time.Since(start),
	)
	return summary, err
}

func (p *Pipeline) runSource(ctx context.Context, b SourceBinding, pool *WorkerPool, ctrl *Controller, summary *Summary, fatal context.CancelCauseFunc) error {
	sourceID := b.Source.ID()
	log := p.logger.With("source", sourceID)

	var cursor track.Cursor
	var haveCursor bool
	if p.opts.Cursors != nil {
		c, found, err := p.opts.Cursors.Load(ctx, sourceID)
		if err != nil {
			summary.fail(Failure{Source: sourceID, Err: err})
			log.WarnContext(ctx, "cursor load failed", "error", err)
			return nil
		}
		cursor, haveCursor = c, found
	}

	if err := ctrl.AcquireRequest(ctx); err != nil {
		return err
	}

	var versions []track.Version
	err := p.opts.Retry.Do(ctx, func(ctx context.Context) error {
		vs, err := b.Source.ListVersions(ctx)
		if err != nil {
			return err
		}
		versions = vs
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.fail(Failure{Source: sourceID, Err: err})
		log.WarnContext(ctx, "version enumeration failed", "error", err)
		return nil
	}

	for _, v := range versions {
		if haveCursor && !cursor.Behind(v) {
			// The cursor marks the version as processed, but a platform
			// can re-release different bytes under the same tag. Cheap
			// re-examination against the feed catches that without
			// re-downloading unchanged assets.
			if err := p.reexamineVersion(ctx, b, v, pool, ctrl, summary, log, fatal); err != nil {
				return err
			}
			continue
		}

		ok, err := p.processVersion(ctx, b, v, pool, ctrl, summary, log, fatal)
		if err != nil {
			return err
		}
		if !ok {
			// The cursor must not move past an incompletely processed
			// version, so newer versions wait for the next run too.
			log.WarnContext(ctx, "version incomplete, deferring to next run", "version", v.Tag)
			break
		}

		if p.opts.Cursors != nil {
			next := track.Cursor{
				Version:     v.Tag,
				PublishedAt: v.PublishedAt,
				UpdatedAt:   time.Now().UTC(),
			}
			if err := p.opts.Cursors.Save(ctx, sourceID, next); err != nil {
				summary.fail(Failure{Source: sourceID, Version: v.Tag, Err: err})
				log.WarnContext(ctx, "cursor save failed", "version", v.Tag, "error", err)
				break
			}
		}
		log.DebugContext(ctx, "version processed", "version", v.Tag)
	}
	return nil
}

// reexamineVersion re-checks a version the cursor has already passed. A
// candidate is fetched again when the feed has no entry for its tuple,
// or when its declared size matches none of the recorded lengths, the
// signature of re-released bytes under a reused tag. Unchanged assets
// are filtered out here without a download; a re-fetch that turns out
// unchanged after all still lands as a duplicate no-op. The cursor does
// not move either way, so failures are retried on the next run.
func (p *Pipeline) reexamineVersion(ctx context.Context, b SourceBinding, v track.Version, pool *WorkerPool, ctrl *Controller, summary *Summary, log *slog.Logger, fatal context.CancelCauseFunc) error {
	pending := v
	pending.Candidates = nil
	for _, c := range v.Candidates {
		if !b.Config.Allows(c.Path) {
			continue
		}
		if p.needsRefetch(c) {
			pending.Candidates = append(pending.Candidates, c)
		}
	}
	if len(pending.Candidates) == 0 {
		return nil
	}

	log.InfoContext(ctx, "re-examining processed version",
		"version", v.Tag, "candidates", len(pending.Candidates))
	_, err := p.processVersion(ctx, b, pending, pool, ctrl, summary, log, fatal)
	return err
}

// needsRefetch reports whether a candidate of an already-processed
// version may carry bytes the feed has not seen. Without a declared size
// the feed cannot rule a change out, so the candidate is fetched and
// dedup decides.
func (p *Pipeline) needsRefetch(c track.Candidate) bool {
	entries := p.store.LookupArtifact(c.Source, c.Path, c.Version)
	if len(entries) == 0 {
		return true
	}
	if c.DeclaredSize <= 0 {
		return true
	}
	for _, e := range entries {
		if e.Length == c.DeclaredSize {
			return false
		}
	}
	return true
}

// processVersion fans a version's candidates out across the worker
// pool and reports whether every artifact was either recorded, a known
// duplicate, or deliberately skipped.
func (p *Pipeline) processVersion(ctx context.Context, b SourceBinding, v track.Version, pool *WorkerPool, ctrl *Controller, summary *Summary, log *slog.Logger, fatal context.CancelCauseFunc) (bool, error) {
	var wg sync.WaitGroup
	var versionOK atomic.Bool
	versionOK.Store(true)

	for _, c := range v.Candidates {
		if !b.Config.Allows(c.Path) {
			continue
		}
		if c.DeclaredSize > 0 && b.Config.MaxArtifactSize > 0 && c.DeclaredSize > b.Config.MaxArtifactSize {
			summary.add(func() { summary.Skipped++ })
			log.DebugContext(ctx, "skipping oversized artifact",
				"path", c.Path, "version", c.Version, "declared_size", c.DeclaredSize)
			continue
		}

		weight := c.DeclaredSize
		if weight <= 0 {
			weight = defaultBufferWeight
		}
		if limit := p.opts.Resources.BufferLimitBytes; limit > 0 && weight > limit {
			weight = limit
		}
		if err := ctrl.AcquireBuffer(ctx, weight); err != nil {
			return false, err
		}
		if err := ctrl.AcquireRequest(ctx); err != nil {
			ctrl.ReleaseBuffer(weight)
			return false, err
		}

		wg.Add(1)
		candidate := c
		err := pool.Submit(ctx, func() {
			defer wg.Done()
			defer ctrl.ReleaseBuffer(weight)
			p.processCandidate(ctx, b, candidate, summary, &versionOK, log, fatal)
		})
		if err != nil {
			wg.Done()
			ctrl.ReleaseBuffer(weight)
			return false, err
		}
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return versionOK.Load(), nil
}

func (p *Pipeline) processCandidate(ctx context.Context, b SourceBinding, c track.Candidate, summary *Summary, versionOK *atomic.Bool, log *slog.Logger, fatal context.CancelCauseFunc) {
	start := time.Now()

	fctx := ctx
	if p.opts.ArtifactTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, p.opts.ArtifactTimeout)
		defer cancel()
	}

	var res *fetch.Result
	err := p.opts.Retry.Do(fctx, func(ctx context.Context) error {
		r, err := p.fetcher.Fetch(ctx, b.Source, c, b.Config.MaxArtifactSize)
		if err != nil {
			if errors.Is(err, fetch.ErrTooLarge) {
				// A size rejection cannot succeed on a second download.
				return Permanent(err)
			}
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if errors.Is(err, fetch.ErrTooLarge) {
			// Will never succeed, not worth pinning the cursor.
			summary.add(func() { summary.Skipped++ })
			log.DebugContext(ctx, "skipping oversized artifact", "path", c.Path, "version", c.Version)
			return
		}
		summary.add(func() { summary.FetchFailed++ })
		summary.fail(Failure{Source: c.Source, Path: c.Path, Version: c.Version, Err: err})
		versionOK.Store(false)
		log.WarnContext(ctx, "fetch failed", "path", c.Path, "version", c.Version, "error", err)
		return
	}

	entry := feed.Entry{
		Source:       c.Source,
		Path:         c.Path,
		Version:      c.Version,
		Undigestible: res.Undigestible,
		Fingerprint:  res.Fingerprint,
		Length:       res.Length,
		ComputedAt:   time.Now().UTC(),
	}
	if !res.Undigestible {
		digest, err := tlsh.Hash(res.Data)
		if err != nil {
			summary.fail(Failure{Source: c.Source, Path: c.Path, Version: c.Version, Err: err})
			versionOK.Store(false)
			log.ErrorContext(ctx, "digest failed", "path", c.Path, "version", c.Version, "error", err)
			return
		}
		entry.Digest = digest
	}

	switch err := p.store.Append(entry); {
	case errors.Is(err, feed.ErrDuplicate):
		summary.add(func() { summary.Duplicates++ })
		log.DebugContext(ctx, "duplicate artifact", "path", c.Path, "version", c.Version)
		return
	case err != nil:
		summary.add(func() { summary.StoreFailed++ })
		summary.fail(Failure{Source: c.Source, Path: c.Path, Version: c.Version, Err: err})
		versionOK.Store(false)
		log.ErrorContext(ctx, "append failed", "path", c.Path, "version", c.Version, "error", err)
		// A store that stopped accepting writes fails every later append
		// too; cancel the whole run.
		fatal(err)
		return
	}

	summary.add(func() {
		summary.Processed++
		if entry.Undigestible {
			summary.Undigestible++
		}
	})

	if p.opts.Archive != nil {
		if err := p.opts.Archive.Put(ctx, blobstore.SampleKey(entry), res.Data); err != nil {
			log.WarnContext(ctx, "sample archive failed", "path", c.Path, "version", c.Version, "error", err)
		}
	}

	log.DebugContext(ctx, "artifact recorded",
		"path", c.Path,
		"version", c.Version,
		"length", entry.Length,
		"undigestible", entry.Undigestible,
		"duration", time.Since(start),
	)
}
