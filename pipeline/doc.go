// Package pipeline orchestrates feed maintenance runs.
//
// A run enumerates every configured source, fetches new artifact
// versions oldest-first, digests them and appends the results to the
// feed store. Cursors advance only past fully processed versions, so a
// failed artifact re-enters the next run. The feed's append-only dedup
// makes that reprocessing idempotent.
//
// Concurrency is bounded three ways: a shared worker pool caps artifact
// tasks in flight, a byte semaphore caps buffered download memory, and
// a rate limiter paces upstream API requests.
package pipeline
