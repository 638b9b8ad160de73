// Package feed implements the durable, append-only corpus of digest
// records that similarity queries run against.
//
// A Store holds entries in insertion order in memory and optionally
// mirrors every append to a Log for durability. Entries are immutable
// once appended: a re-release of the same artifact path produces a new
// entry that supersedes the old one by position, never an overwrite.
// Re-ingesting bit-identical content is rejected with ErrDuplicate, which
// callers treat as a benign no-op.
//
// The shipped Log implementation is a local append-only file with a
// magic/version header, length-prefixed CRC-checked records and optional
// zstd compression. Torn trailing records (crash mid-append) are dropped
// on replay, so a reader always observes a consistent prefix of the feed.
package feed
