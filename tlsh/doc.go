// Package tlsh implements a locality-sensitive digest over byte streams,
// following the TLSH reference construction, together with the matching
// distance metric. Unlike a cryptographic hash, nearby inputs produce
// nearby digests: the distance between two digests is a small non-negative
// integer when the underlying byte streams are similar.
//
// Construction constants (fixed, see the reference TLSH design):
//
//   - sliding window of 5 bytes
//   - 128 histogram buckets selected by six salted Pearson triplet hashes
//     per window position
//   - 1-byte rolling checksum chained through a seventh Pearson hash
//   - bucket counters quantized to 2 bits against their own quartile
//     boundaries (Q1/Q2/Q3), packed 4 codes per byte into a 32-byte body
//   - 4-byte header: checksum, log-scale length bucket, Q1/Q3 ratio,
//     Q2/Q3 ratio
//
// A digest is 36 bytes (72 hex characters) and is fully determined by the
// input bytes: hashing the same stream twice yields a bit-identical value.
//
// Two deliberate departures from the reference implementation, kept for
// the feed use case:
//
//   - Degenerate streams (for example all-zero input) are digested rather
//     than rejected; when Q3 is zero both quartile-ratio bytes are zero.
//   - Header bytes are emitted in natural order without the nibble
//     swapping of the reference hex string encoding.
//
// Distance weights follow the TLSH diff scoring: length-bucket and
// quartile-ratio differences beyond one band cost 12 per band, a checksum
// mismatch costs 1, and each differing 2-bit body code costs its absolute
// code difference, with the maximum difference of 3 costing 6. The score
// of a digest against itself is exactly 0 and Diff is symmetric.
package tlsh
