package tlsh

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

const (
	// windowSize is the width of the sliding window in bytes.
	windowSize = 5

	// numBuckets is the number of histogram buckets carried into the
	// digest body. The triplet hashes select from 256 buckets; only the
	// first half is encoded, per the 128-bucket reference construction.
	numBuckets = 128

	// bodySize is the packed body length: 128 buckets, 2 bits each.
	bodySize = numBuckets / 4

	// headerSize covers checksum, length bucket and two quartile ratios.
	headerSize = 4

	// Size is the total digest length in bytes.
	Size = headerSize + bodySize

	// MinInputSize is the minimum number of input bytes that can be
	// digested. Shorter input yields ErrUndigestible.
	MinInputSize = 50
)

// Header byte offsets within a Digest.
const (
	offChecksum     = 0
	offLengthBucket = 1
	offQ1Ratio      = 2
	offQ2Ratio      = 3
)

// ErrUndigestible is returned when the input is too short to produce a
// meaningful digest. It is a property of the input, not a transient
// failure: retrying the same bytes will never succeed.
var ErrUndigestible = errors.New("tlsh: input too short to digest")

// Digest is a fixed-width similarity-preserving summary of a byte stream.
//
// The zero value is never produced by Hash (a valid digest always has a
// nonzero length bucket) and can therefore mark "no digest" states.
type Digest [Size]byte

// Hash computes the digest of data.
// Inputs shorter than MinInputSize return ErrUndigestible. The content
// itself is never rejected: binary, compressed and adversarially
// repetitive streams all digest successfully.
func Hash(data []byte) (Digest, error) {
	if len(data) < MinInputSize {
		return Digest{}, fmt.Errorf("%w: %d bytes (minimum %d)", ErrUndigestible, len(data), MinInputSize)
	}

	var st state
	st.update(data)
	return st.finalize()
}

// HashReader consumes r to EOF and digests the bytes read.
// The stream is read exactly once; it does not need to be seekable.
func HashReader(r io.Reader) (Digest, error) {
	var st state
	br := bufio.NewReader(r)
	buf := make([]byte, 32*1024)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			st.update(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, err
		}
	}
	if st.length < MinInputSize {
		return Digest{}, fmt.Errorf("%w: %d bytes (minimum %d)", ErrUndigestible, st.length, MinInputSize)
	}
	return st.finalize()
}

// Parse decodes the 72-character hex encoding produced by String.
func Parse(s string) (Digest, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("tlsh: invalid digest encoding: %w", err)
	}
	if len(raw) != Size {
		return Digest{}, fmt.Errorf("tlsh: invalid digest length %d (want %d)", len(raw), Size)
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the fixed-width hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest (no digest computed).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Checksum returns the rolling checksum header byte. It is computed over
// the raw stream independently of the bucket histogram and guards against
// accidental zero-distance collisions between unrelated short inputs.
func (d Digest) Checksum() byte { return d[offChecksum] }

// LengthBucket returns the log-scale length bucket header byte. Streams of
// grossly similar size share a bucket; the banding prefilter groups feed
// entries by this value.
func (d Digest) LengthBucket() byte { return d[offLengthBucket] }

// Q1Ratio returns the Q1/Q3 quartile ratio header byte (0..15).
func (d Digest) Q1Ratio() byte { return d[offQ1Ratio] }

// Q2Ratio returns the Q2/Q3 quartile ratio header byte (0..15).
func (d Digest) Q2Ratio() byte { return d[offQ2Ratio] }

// Body returns the packed 2-bit bucket codes.
func (d Digest) Body() []byte {
	body := make([]byte, bodySize)
	copy(body, d[headerSize:])
	return body
}

// state accumulates the histogram incrementally. It allows HashReader to
// feed arbitrary chunk sizes without buffering the whole stream.
type state struct {
	buckets  [256]uint64
	checksum byte
	window   [windowSize]byte // window[0] is the newest byte
	length   uint64
}

func (st *state) update(data []byte) {
	for _, b := range data {
		// Shift the window: oldest byte falls off.
		st.window[4] = st.window[3]
		st.window[3] = st.window[2]
		st.window[2] = st.window[1]
		st.window[1] = st.window[0]
		st.window[0] = b
		st.length++

		if st.length < windowSize {
			continue
		}

		w := &st.window
		st.checksum = pearsonHash(0, w[0], w[1], st.checksum)

		st.buckets[pearsonHash(2, w[0], w[1], w[2])]++
		st.buckets[pearsonHash(3, w[0], w[1], w[3])]++
		st.buckets[pearsonHash(5, w[0], w[2], w[3])]++
		st.buckets[pearsonHash(7, w[0], w[2], w[4])]++
		st.buckets[pearsonHash(11, w[0], w[1], w[4])]++
		st.buckets[pearsonHash(13, w[0], w[3], w[4])]++
	}
}

func (st *state) finalize() (Digest, error) {
	q1, q2, q3 := quartiles(st.buckets[:numBuckets])

	var d Digest
	d[offChecksum] = st.checksum
	d[offLengthBucket] = lengthBucket(st.length)
	if q3 > 0 {
		d[offQ1Ratio] = byte((q1 * 100 / q3) % 16)
		d[offQ2Ratio] = byte((q2 * 100 / q3) % 16)
	}

	for i := 0; i < numBuckets; i++ {
		var code byte
		switch c := st.buckets[i]; {
		case c <= q1:
			code = 0
		case c <= q2:
			code = 1
		case c <= q3:
			code = 2
		default:
			code = 3
		}
		d[headerSize+i/4] |= code << uint(2*(i%4))
	}

	return d, nil
}

// quartiles returns the Q1/Q2/Q3 boundaries of the bucket distribution.
func quartiles(buckets []uint64) (q1, q2, q3 uint64) {
	sorted := make([]uint64, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	q1 = sorted[n/4-1]
	q2 = sorted[n/2-1]
	q3 = sorted[n*3/4-1]
	return q1, q2, q3
}

// Logarithm bases of the three length-bucket bands. Small files get fine
// granularity (base 1.5), large files coarse (base 1.1); the constants
// match the reference l_capturing tables.
var (
	log15 = math.Log(1.5)
	log13 = math.Log(1.3)
	log11 = math.Log(1.1)
)

// lengthBucket maps the stream length onto a log-scale byte, saturating at
// 255 for very large inputs.
func lengthBucket(length uint64) byte {
	l := float64(length)
	var b float64
	switch {
	case length <= 656:
		b = math.Floor(math.Log(l) / log15)
	case length <= 3199:
		b = math.Floor(math.Log(l)/log13 - 8.72777)
	default:
		b = math.Floor(math.Log(l)/log11 - 62.5472)
	}
	if b < 0 {
		return 0
	}
	if b > 255 {
		return 255
	}
	return byte(b)
}
