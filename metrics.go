package fuzzyfeed

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/fuzzyfeed/pipeline"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    ingestCounter  prometheus.Counter
//	    matchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordIngest(summary *pipeline.Summary, duration time.Duration, err error) {
//	    p.ingestCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordIngest is called after each maintenance run.
	// summary carries per-run counters, err is nil unless the run was
	// cut short.
	RecordIngest(summary *pipeline.Summary, duration time.Duration, err error)

	// RecordAppend is called after each direct append.
	RecordAppend(duration time.Duration, err error)

	// RecordMatch is called after each match query. results is the
	// number of entries within the threshold.
	RecordMatch(results int, duration time.Duration, err error)

	// RecordExport is called after each feed export. count is the
	// number of entries written.
	RecordExport(count int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(*pipeline.Summary, time.Duration, error) {}
func (NoopMetricsCollector) RecordAppend(time.Duration, error)                    {}
func (NoopMetricsCollector) RecordMatch(int, time.Duration, error)                {}
func (NoopMetricsCollector) RecordExport(int, time.Duration, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IngestCount      atomic.Int64
	IngestErrors     atomic.Int64
	IngestProcessed  atomic.Int64
	IngestDuplicates atomic.Int64
	IngestFailed     atomic.Int64
	IngestTotalNanos atomic.Int64
	AppendCount      atomic.Int64
	AppendErrors     atomic.Int64
	MatchCount       atomic.Int64
	MatchErrors      atomic.Int64
	MatchResults     atomic.Int64
	MatchTotalNanos  atomic.Int64
	ExportCount      atomic.Int64
	ExportErrors     atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(summary *pipeline.Summary, duration time.Duration, err error) {
	b.IngestCount.Add(1)
	b.IngestTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.IngestErrors.Add(1)
	}
	if summary != nil {
		b.IngestProcessed.Add(int64(summary.Processed))
		b.IngestDuplicates.Add(int64(summary.Duplicates))
		b.IngestFailed.Add(int64(summary.FetchFailed + summary.StoreFailed))
	}
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(duration time.Duration, err error) {
	b.AppendCount.Add(1)
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(results int, duration time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchResults.Add(int64(results))
	b.MatchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MatchErrors.Add(1)
	}
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(count int, duration time.Duration, err error) {
	b.ExportCount.Add(1)
	if err != nil {
		b.ExportErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestCount:      b.IngestCount.Load(),
		IngestErrors:     b.IngestErrors.Load(),
		IngestProcessed:  b.IngestProcessed.Load(),
		IngestDuplicates: b.IngestDuplicates.Load(),
		IngestFailed:     b.IngestFailed.Load(),
		IngestAvgNanos:   avgNanos(&b.IngestTotalNanos, &b.IngestCount),
		AppendCount:      b.AppendCount.Load(),
		AppendErrors:     b.AppendErrors.Load(),
		MatchCount:       b.MatchCount.Load(),
		MatchErrors:      b.MatchErrors.Load(),
		MatchResults:     b.MatchResults.Load(),
		MatchAvgNanos:    avgNanos(&b.MatchTotalNanos, &b.MatchCount),
		ExportCount:      b.ExportCount.Load(),
		ExportErrors:     b.ExportErrors.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	c := count.Load()
	if c == 0 {
		return 0
	}
	return total.Load() / c
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount      int64
	IngestErrors     int64
	IngestProcessed  int64
	IngestDuplicates int64
	IngestFailed     int64
	IngestAvgNanos   int64
	AppendCount      int64
	AppendErrors     int64
	MatchCount       int64
	MatchErrors      int64
	MatchResults     int64
	MatchAvgNanos    int64
	ExportCount      int64
	ExportErrors     int64
}
