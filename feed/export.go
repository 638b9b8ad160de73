package feed

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/fuzzyfeed/tlsh"
)

// Export writes the feed as one tab-separated record per line:
//
//	source \t path \t version \t digest \t fingerprint \t length \t computed-at
//
// The digest is the fixed-width hex encoding, or "-" for undigestible
// entries; the timestamp is RFC 3339 in UTC. Export followed by Import
// reproduces an identical entry set.
func (s *Store) Export(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range s.Snapshot() {
		digest := "-"
		if !e.Undigestible {
			digest = e.Digest.String()
		}
		_, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Source, e.Path, e.Version, digest,
			hex.EncodeToString(e.Fingerprint[:]), e.Length,
			e.ComputedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("feed: export: %w", err)
		}
	}
	return bw.Flush()
}

// Import appends every record read from r into the store. Records already
// present are skipped (duplicates are the expected case when re-importing
// an export over a live feed). Malformed lines abort the import with their
// line number.
func (s *Store) Import(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		entry, err := parseRecordLine(text)
		if err != nil {
			return fmt.Errorf("feed: import line %d: %w", line, err)
		}
		if err := s.Append(entry); err != nil && err != ErrDuplicate {
			return fmt.Errorf("feed: import line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("feed: import: %w", err)
	}
	return nil
}

func parseRecordLine(text string) (Entry, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != 7 {
		return Entry{}, fmt.Errorf("want 7 fields, got %d", len(fields))
	}

	var e Entry
	e.Source = fields[0]
	e.Path = fields[1]
	e.Version = fields[2]

	if fields[3] == "-" {
		e.Undigestible = true
	} else {
		d, err := tlsh.Parse(fields[3])
		if err != nil {
			return Entry{}, err
		}
		e.Digest = d
	}

	fp, err := hex.DecodeString(fields[4])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid fingerprint: %w", err)
	}
	if len(fp) != FingerprintSize {
		return Entry{}, fmt.Errorf("invalid fingerprint length %d", len(fp))
	}
	copy(e.Fingerprint[:], fp)

	length, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid length: %w", err)
	}
	e.Length = length

	ts, err := time.Parse(time.RFC3339Nano, fields[6])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	e.ComputedAt = ts.UTC()

	return e, nil
}
