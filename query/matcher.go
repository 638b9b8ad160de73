package query

import (
	"context"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/tlsh"
)

// Result is one match of a similarity query. It is ephemeral: produced
// per query, never persisted.
type Result struct {
	// Entry is the matched feed entry.
	Entry feed.Entry

	// Position is the entry's feed insertion position, the tie-breaker
	// for equal distances.
	Position int

	// Distance is the digest distance to the query, >= 0.
	Distance int
}

// Options configures a Matcher.
type Options struct {
	// Banding enables the length-bucket prefilter. Off, every query is a
	// full linear scan; on, whole bands of entries are skipped when their
	// length-bucket score alone exceeds the query threshold. Result sets
	// are identical either way.
	Banding bool

	// cancelCheckInterval is how many entries are scanned between
	// context checks.
	cancelCheckInterval int
}

// DefaultOptions returns the default Matcher options.
var DefaultOptions = Options{
	Banding:             false,
	cancelCheckInterval: 4096,
}

// Matcher executes similarity queries against a feed store.
// It is safe for concurrent use; queries run against a consistent
// snapshot of the feed and may overlap with pipeline appends.
type Matcher struct {
	store *feed.Store
	opts  Options

	// Band index over feed positions, extended lazily as the feed grows.
	// Entries never mutate, so indexed prefixes stay valid forever.
	bandMu  sync.Mutex
	bands   map[byte]*roaring.Bitmap
	indexed int
}

// NewMatcher creates a Matcher over the given store.
func NewMatcher(store *feed.Store, optFns ...func(o *Options)) *Matcher {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Matcher{
		store: store,
		opts:  opts,
		bands: make(map[byte]*roaring.Bitmap),
	}
}

// Match returns all feed entries whose digest lies within maxDistance of
// the query digest, ascending by distance, ties broken by feed insertion
// order. A negative maxDistance means no threshold (every digestible
// entry is returned, sorted). A threshold of 0 degenerates to exact
// digest matching. Undigestible entries never match.
func (m *Matcher) Match(ctx context.Context, digest tlsh.Digest, maxDistance int) ([]Result, error) {
	snapshot := m.store.Snapshot()

	var results []Result
	var err error
	if m.opts.Banding && maxDistance >= 0 {
		results, err = m.scanBanded(ctx, snapshot, digest, maxDistance)
	} else {
		results, err = m.scanLinear(ctx, snapshot, digest, maxDistance)
	}
	if err != nil {
		return nil, err
	}

	// Stable sort: equal distances keep feed insertion order because
	// candidates are collected in ascending position order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	return results, nil
}

func (m *Matcher) scanLinear(ctx context.Context, snapshot []feed.Entry, digest tlsh.Digest, maxDistance int) ([]Result, error) {
	var results []Result
	for i, e := range snapshot {
		if i%m.opts.cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if e.Undigestible {
			continue
		}
		d := digest.Diff(e.Digest)
		if maxDistance >= 0 && d > maxDistance {
			continue
		}
		results = append(results, Result{Entry: e, Position: i, Distance: d})
	}
	return results, nil
}

func (m *Matcher) scanBanded(ctx context.Context, snapshot []feed.Entry, digest tlsh.Digest, maxDistance int) ([]Result, error) {
	m.extendBands(snapshot)

	queryBucket := digest.LengthBucket()

	// Collect candidate positions from every band that could still fall
	// within the threshold. DiffLengthBucket is a lower bound on the full
	// distance, so skipped bands cannot contain matches.
	candidates := roaring.New()
	m.bandMu.Lock()
	for bucket, bitmap := range m.bands {
		if tlsh.DiffLengthBucket(queryBucket, bucket) > maxDistance {
			continue
		}
		candidates.Or(bitmap)
	}
	m.bandMu.Unlock()

	var results []Result
	checked := 0
	it := candidates.Iterator()
	for it.HasNext() {
		pos := int(it.Next())
		if pos >= len(snapshot) {
			break // band index ran ahead of this query's snapshot
		}
		if checked%m.opts.cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		checked++

		e := snapshot[pos]
		d := digest.Diff(e.Digest)
		if d > maxDistance {
			continue
		}
		results = append(results, Result{Entry: e, Position: pos, Distance: d})
	}
	return results, nil
}

// extendBands indexes feed positions added since the last query.
func (m *Matcher) extendBands(snapshot []feed.Entry) {
	m.bandMu.Lock()
	defer m.bandMu.Unlock()

	for i := m.indexed; i < len(snapshot); i++ {
		e := snapshot[i]
		if e.Undigestible {
			continue
		}
		bucket := e.Digest.LengthBucket()
		bitmap, ok := m.bands[bucket]
		if !ok {
			bitmap = roaring.New()
			m.bands[bucket] = bitmap
		}
		bitmap.Add(uint32(i)) //nolint:gosec
	}
	if len(snapshot) > m.indexed {
		m.indexed = len(snapshot)
	}
}
