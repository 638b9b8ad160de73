// Package track enumerates release artifacts from tracked upstream
// sources and remembers, per source, how far ingestion has progressed.
//
// Hosting platforms are abstracted behind the small Source capability
// interface (list versions, open artifact bytes); GitHub is the shipped
// implementation. A Cursor marks the newest fully-processed version of a
// source. Cursors only ever advance, except through an explicit Reset: a
// failed pipeline run leaves the cursor pinned so the affected artifacts
// are re-enumerated on the next run rather than silently skipped.
// Cursor persistence is pluggable: a local JSON file store and a
// DynamoDB store with conditional writes are provided.
package track
