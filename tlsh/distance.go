package tlsh

// Weighting constants of the diff scoring. A difference of one band in the
// length bucket or a quartile ratio is scored as-is; anything beyond one
// band is scaled by outlierWeight, matching the reference TLSH diff.
const (
	outlierWeight = 12

	// maxCodeDiffScore is the score of two body codes at the maximum
	// 2-bit distance (0 vs 3): extreme quantization disagreement is
	// penalized beyond its linear difference.
	maxCodeDiffScore = 6
)

// Diff computes the distance between two digests.
//
// The result is a non-negative integer: 0 for identical digests, growing
// with dissimilarity. Diff is symmetric and bounded (the header can
// contribute at most 12*128 + 2*12*7 + 1 and the body at most 6 per
// bucket), so the sum never overflows an int.
func (d Digest) Diff(other Digest) int {
	score := lengthBucketDiff(d[offLengthBucket], other[offLengthBucket])
	score += ratioDiff(d[offQ1Ratio], other[offQ1Ratio])
	score += ratioDiff(d[offQ2Ratio], other[offQ2Ratio])
	if d[offChecksum] != other[offChecksum] {
		score++
	}
	for i := headerSize; i < Size; i++ {
		score += codeByteDiff(d[i], other[i])
	}
	return score
}

// DiffLengthBucket scores the length-bucket header bytes of two digests
// in isolation. Because every other Diff term is non-negative, this is a
// lower bound on the full distance: prefilters may discard a candidate
// whose length-bucket score alone exceeds the threshold without changing
// the result set.
func DiffLengthBucket(a, b byte) int {
	return lengthBucketDiff(a, b)
}

// lengthBucketDiff scores the circular distance between two length
// buckets: 0 or 1 band as-is, beyond that scaled by outlierWeight.
func lengthBucketDiff(a, b byte) int {
	diff := modDiff(int(a), int(b), 256)
	if diff <= 1 {
		return diff
	}
	return diff * outlierWeight
}

// ratioDiff scores the circular distance between two quartile-ratio bytes
// (range 16). One band is tolerated cheaply; each further band costs
// outlierWeight.
func ratioDiff(a, b byte) int {
	diff := modDiff(int(a), int(b), 16)
	if diff <= 1 {
		return diff
	}
	return (diff - 1) * outlierWeight
}

// codeByteDiff sums the per-bucket code distances of one packed body byte
// (four 2-bit codes).
func codeByteDiff(a, b byte) int {
	if a == b {
		return 0
	}
	score := 0
	for shift := uint(0); shift < 8; shift += 2 {
		ca := int((a >> shift) & 0x3)
		cb := int((b >> shift) & 0x3)
		d := ca - cb
		if d < 0 {
			d = -d
		}
		if d == 3 {
			score += maxCodeDiffScore
		} else {
			score += d
		}
	}
	return score
}

// modDiff is the circular distance between a and b in a ring of the given
// range.
func modDiff(a, b, ring int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if wrap := ring - d; wrap < d {
		return wrap
	}
	return d
}
