package feed

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/fuzzyfeed/tlsh"
	"github.com/klauspost/compress/zstd"
)

// Log is the durable append-only backend of a Store. Implementations must
// make each append atomic: replay either yields a record completely or
// not at all.
type Log interface {
	// Append persists one entry.
	Append(entry Entry) error

	// Replay invokes callback for every persisted entry in append order.
	Replay(callback func(entry Entry) error) error

	// Close flushes and releases the log.
	Close() error
}

var (
	logMagic          = [4]byte{'F', 'Z', 'F', '0'}
	logHeaderVersion  = uint16(1)
	logHeaderFixedLen = 16 // includes magic; trailing bytes reserved
)

// LogOptions configures a FileLog.
type LogOptions struct {
	// Path is the directory where the feed log file is stored.
	Path string

	// Compress enables zstd compression of the record stream. The flag is
	// sticky: an existing log keeps the mode it was created with.
	Compress bool

	// CompressionLevel sets the zstd level (1-22). Default 3.
	CompressionLevel int

	// Sync forces an fsync after every append. Slow but loses nothing on
	// crash; without it the OS page cache decides.
	Sync bool
}

// DefaultLogOptions returns the default FileLog options.
var DefaultLogOptions = LogOptions{
	Path:             ".",
	Compress:         false,
	CompressionLevel: 3,
	Sync:             false,
}

// FileLog is an append-only feed log backed by a single local file.
type FileLog struct {
	mu           sync.Mutex
	file         *os.File
	writer       io.Writer
	bufWriter    *bufio.Writer
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
	filePath     string
	compressed   bool
	sync         bool
	dataOffset   int64
}

// OpenLog opens or creates a feed log in the directory given by the
// options. Existing records are preserved; new appends go to the end.
func OpenLog(optFns ...func(o *LogOptions)) (*FileLog, error) {
	opts := DefaultLogOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(opts.Path, 0750); err != nil {
		return nil, fmt.Errorf("feed: create log directory: %w", err)
	}

	filePath := filepath.Join(opts.Path, "feed.log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return nil, fmt.Errorf("feed: open log file: %w", err)
	}

	l := &FileLog{
		file:     file,
		filePath: filePath,
		sync:     opts.Sync,
	}

	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("feed: stat log file: %w", err)
	}

	if st.Size() == 0 {
		if err := l.writeHeader(opts); err != nil {
			_ = file.Close()
			return nil, err
		}
	} else {
		if err := l.readHeader(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("feed: seek log end: %w", err)
	}

	if l.compressed {
		level := zstd.EncoderLevelFromZstd(opts.CompressionLevel)
		compressor, err := zstd.NewWriter(l.file, zstd.WithEncoderLevel(level))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("feed: create compressor: %w", err)
		}
		l.compressor = compressor
		l.bufWriter = bufio.NewWriter(compressor)

		decompressor, err := zstd.NewReader(nil)
		if err != nil {
			_ = compressor.Close()
			_ = file.Close()
			return nil, fmt.Errorf("feed: create decompressor: %w", err)
		}
		l.decompressor = decompressor
	} else {
		l.bufWriter = bufio.NewWriter(l.file)
	}
	l.writer = l.bufWriter

	return l, nil
}

// FilePath returns the path of the backing file.
func (l *FileLog) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

func (l *FileLog) writeHeader(opts LogOptions) error {
	var flags uint16
	if opts.Compress {
		flags |= 1
	}

	buf := make([]byte, logHeaderFixedLen)
	copy(buf, logMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], logHeaderVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	buf[8] = uint8(opts.CompressionLevel) //nolint:gosec
	// buf[9:16] reserved

	if _, err := l.file.Write(buf); err != nil {
		return fmt.Errorf("feed: write log header: %w", err)
	}
	l.compressed = opts.Compress
	l.dataOffset = int64(logHeaderFixedLen)
	return nil
}

func (l *FileLog) readHeader() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("feed: seek log start: %w", err)
	}

	buf := make([]byte, logHeaderFixedLen)
	if _, err := io.ReadFull(l.file, buf); err != nil {
		return fmt.Errorf("feed: read log header: %w", err)
	}
	if [4]byte(buf[0:4]) != logMagic {
		return errors.New("feed: unsupported log format: invalid header magic")
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != logHeaderVersion {
		return fmt.Errorf("feed: unsupported log header version: %d", v)
	}
	flags := binary.LittleEndian.Uint16(buf[6:8])
	l.compressed = (flags & 1) != 0
	l.dataOffset = int64(logHeaderFixedLen)
	return nil
}

// Append persists one entry. The record is length-prefixed and
// CRC-checked so a torn tail write is detectable on replay.
func (l *FileLog) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := encodeEntry(entry)

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload))) //nolint:gosec
	if _, err := l.writer.Write(prefix[:]); err != nil {
		return fmt.Errorf("feed: write record length: %w", err)
	}
	if _, err := l.writer.Write(payload); err != nil {
		return fmt.Errorf("feed: write record: %w", err)
	}
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc32.ChecksumIEEE(payload))
	if _, err := l.writer.Write(sum[:]); err != nil {
		return fmt.Errorf("feed: write record checksum: %w", err)
	}

	if err := l.flushLocked(); err != nil {
		return err
	}
	if l.sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("feed: fsync log: %w", err)
		}
	}
	return nil
}

func (l *FileLog) flushLocked() error {
	if err := l.bufWriter.Flush(); err != nil {
		return fmt.Errorf("feed: flush buffer: %w", err)
	}
	if l.compressed {
		if err := l.compressor.Flush(); err != nil {
			return fmt.Errorf("feed: flush compressor: %w", err)
		}
	}
	return nil
}

// Replay reads every intact record in append order. A torn or corrupt
// trailing record ends the replay without error; anything before it is
// still delivered.
func (l *FileLog) Replay(callback func(entry Entry) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if _, err := l.file.Seek(l.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("feed: seek log data: %w", err)
	}

	var reader io.Reader
	if l.compressed {
		if err := l.decompressor.Reset(l.file); err != nil {
			return fmt.Errorf("feed: reset decompressor: %w", err)
		}
		reader = l.decompressor
	} else {
		reader = bufio.NewReader(l.file)
	}

	for {
		entry, err := readRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Torn tail from a crash mid-append: everything before it is
			// a consistent prefix of the feed.
			break
		}
		if err := callback(entry); err != nil {
			// Reposition for appends before surfacing the callback error.
			if _, serr := l.file.Seek(0, io.SeekEnd); serr != nil {
				return fmt.Errorf("feed: seek log end: %w", serr)
			}
			return err
		}
	}

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("feed: seek log end: %w", err)
	}
	return nil
}

// Close flushes and closes the log file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.bufWriter.Flush(); err != nil {
		return fmt.Errorf("feed: flush buffer: %w", err)
	}
	if l.compressed {
		if err := l.compressor.Close(); err != nil {
			return fmt.Errorf("feed: close compressor: %w", err)
		}
		l.decompressor.Close()
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("feed: fsync log: %w", err)
	}
	return l.file.Close()
}

func readRecord(r io.Reader) (Entry, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Entry{}, err
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n == 0 || n > maxRecordSize {
		return Entry{}, fmt.Errorf("feed: implausible record length %d", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Entry{}, err
	}
	var sum [4]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return Entry{}, err
	}
	if binary.LittleEndian.Uint32(sum[:]) != crc32.ChecksumIEEE(payload) {
		return Entry{}, errors.New("feed: record checksum mismatch")
	}

	return decodeEntry(payload)
}

// maxRecordSize bounds a single encoded record. Identifiers are short
// strings and the digest is fixed-width, so anything near this limit is
// corruption, not data.
const maxRecordSize = 1 << 20

// Record layout, little-endian:
// [flags:1][srcLen:2][src][pathLen:2][path][verLen:2][ver]
// [digest:36][fingerprint:32][length:8][computedAt:8 unix-nano]
const flagUndigestible = 1

func encodeEntry(e Entry) []byte {
	buf := make([]byte, 0, 1+3*2+len(e.Source)+len(e.Path)+len(e.Version)+tlsh.Size+FingerprintSize+16)

	var flags byte
	if e.Undigestible {
		flags |= flagUndigestible
	}
	buf = append(buf, flags)
	buf = appendString(buf, e.Source)
	buf = appendString(buf, e.Path)
	buf = appendString(buf, e.Version)
	buf = append(buf, e.Digest[:]...)
	buf = append(buf, e.Fingerprint[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Length))              //nolint:gosec
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.ComputedAt.UnixNano())) //nolint:gosec
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s))) //nolint:gosec
	return append(buf, s...)
}

func decodeEntry(payload []byte) (Entry, error) {
	var e Entry
	if len(payload) < 1 {
		return e, errors.New("feed: truncated record")
	}
	flags := payload[0]
	e.Undigestible = flags&flagUndigestible != 0
	rest := payload[1:]

	var err error
	if e.Source, rest, err = readString(rest); err != nil {
		return e, err
	}
	if e.Path, rest, err = readString(rest); err != nil {
		return e, err
	}
	if e.Version, rest, err = readString(rest); err != nil {
		return e, err
	}

	if len(rest) != tlsh.Size+FingerprintSize+16 {
		return e, errors.New("feed: truncated record")
	}
	copy(e.Digest[:], rest[:tlsh.Size])
	rest = rest[tlsh.Size:]
	copy(e.Fingerprint[:], rest[:FingerprintSize])
	rest = rest[FingerprintSize:]
	e.Length = int64(binary.LittleEndian.Uint64(rest[:8]))                         //nolint:gosec
	e.ComputedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(rest[8:16]))).UTC() //nolint:gosec
	return e, nil
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, errors.New("feed: truncated record")
	}
	n := int(binary.LittleEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, errors.New("feed: truncated record")
	}
	return string(buf[:n]), buf[n:], nil
}
