package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"testing"

	"github.com/hupe1980/fuzzyfeed/track"
)

type fakeSource struct {
	id      string
	data    map[string][]byte
	openErr error
}

func (s *fakeSource) ID() string { return s.id }

func (s *fakeSource) ListVersions(_ context.Context) ([]track.Version, error) {
	return nil, nil
}

func (s *fakeSource) Open(_ context.Context, c track.Candidate) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	data, ok := s.data[c.Path]
	if !ok {
		return nil, errors.New("no such artifact")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func candidate(path string, declared int64) track.Candidate {
	return track.Candidate{
		Source:       "example/repo",
		Path:         path,
		Version:      "v1.0.0",
		DeclaredSize: declared,
	}
}

func TestFetchComputesFingerprintAndLength(t *testing.T) {
	data := bytes.Repeat([]byte("fuzzyfeed artifact content "), 8)
	src := &fakeSource{id: "example/repo", data: map[string][]byte{"tool.bin": data}}
	f := New()

	res, err := f.Fetch(context.Background(), src, candidate("tool.bin", int64(len(data))), 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("data mismatch")
	}
	if res.Length != int64(len(data)) {
		t.Errorf("length = %d, want %d", res.Length, len(data))
	}
	if res.Fingerprint != sha256.Sum256(data) {
		t.Error("fingerprint mismatch")
	}
	if res.Undigestible {
		t.Error("artifact should be digestible")
	}
}

func TestFetchShortArtifactIsUndigestible(t *testing.T) {
	data := []byte("tiny")
	src := &fakeSource{id: "example/repo", data: map[string][]byte{"tiny.bin": data}}
	f := New()

	res, err := f.Fetch(context.Background(), src, candidate("tiny.bin", 0), 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Undigestible {
		t.Error("short artifact should be undigestible")
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("short artifact bytes must still be returned")
	}
	if res.Fingerprint != sha256.Sum256(data) {
		t.Error("fingerprint mismatch")
	}
}

func TestFetchRejectsDeclaredOversize(t *testing.T) {
	src := &fakeSource{id: "example/repo"}
	f := New()

	_, err := f.Fetch(context.Background(), src, candidate("huge.bin", 2048), 1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestFetchRejectsActualOversize(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 2048)
	// Declared size lies below the cap.
	src := &fakeSource{id: "example/repo", data: map[string][]byte{"liar.bin": data}}
	f := New()

	_, err := f.Fetch(context.Background(), src, candidate("liar.bin", 100), 1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestFetchAtCapExactlySucceeds(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 1024)
	src := &fakeSource{id: "example/repo", data: map[string][]byte{"edge.bin": data}}
	f := New()

	res, err := f.Fetch(context.Background(), src, candidate("edge.bin", 1024), 1024)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Length != 1024 {
		t.Errorf("length = %d, want 1024", res.Length)
	}
}

func TestFetchWrapsTransportFailure(t *testing.T) {
	src := &fakeSource{id: "example/repo", openErr: errors.New("connection reset")}
	f := New()

	_, err := f.Fetch(context.Background(), src, candidate("gone.bin", 0), 0)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T, want *FetchError", err)
	}
	if fe.Path != "gone.bin" || fe.Version != "v1.0.0" {
		t.Errorf("FetchError identity = %q@%q", fe.Path, fe.Version)
	}
}
