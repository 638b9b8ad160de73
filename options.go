package fuzzyfeed

import (
	"github.com/hupe1980/fuzzyfeed/blobstore"
	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/pipeline"
	"github.com/hupe1980/fuzzyfeed/track"
)

type options struct {
	logPath         string
	logOptions      []func(o *feed.LogOptions)
	sources         []pipeline.SourceBinding
	cursors         track.CursorStore
	archive         blobstore.BlobStore
	banding         bool
	pipelineOptions []func(o *pipeline.Options)
	metrics         MetricsCollector
	logger          *Logger
}

// Option configures FuzzyFeed constructor behavior.
type Option func(*options)

func applyOptions(optFns []Option) options {
	opts := options{
		metrics: NoopMetricsCollector{},
		logger:  NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// WithFeedLog enables the durable feed log in the given directory.
// Entries are replayed on Open and every append is persisted before it
// becomes visible.
func WithFeedLog(dir string, optFns ...func(o *feed.LogOptions)) Option {
	return func(o *options) {
		o.logPath = dir
		o.logOptions = optFns
	}
}

// WithSource registers a tracked source with its configuration. May be
// given multiple times.
func WithSource(src track.Source, cfg track.SourceConfig) Option {
	return func(o *options) {
		o.sources = append(o.sources, pipeline.SourceBinding{Source: src, Config: cfg})
	}
}

// WithCursorStore persists per-source progress so successive Ingest
// runs fetch only what is new.
func WithCursorStore(cursors track.CursorStore) Option {
	return func(o *options) {
		o.cursors = cursors
	}
}

// WithArchive stores a copy of every newly recorded artifact sample.
// Wrap the store in blobstore.NewArchive for LZ4 compression.
func WithArchive(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.archive = store
	}
}

// WithBanding enables the length-bucket banding index for match
// prefiltering. Results are identical to a linear scan; large feeds
// with tight thresholds match faster.
func WithBanding() Option {
	return func(o *options) {
		o.banding = true
	}
}

// WithPipelineOptions customizes the maintenance pipeline, e.g. worker
// count, retry policy, or resource limits.
func WithPipelineOptions(optFns ...func(o *pipeline.Options)) Option {
	return func(o *options) {
		o.pipelineOptions = append(o.pipelineOptions, optFns...)
	}
}

// WithMetricsCollector wires operational metrics into a monitoring
// system such as Prometheus.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector == nil {
			collector = NoopMetricsCollector{}
		}
		o.metrics = collector
	}
}

// WithLogger sets the structured logger. Nil restores the no-op logger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}
