package fuzzyfeed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/fuzzyfeed/blobstore"
	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/pipeline"
	"github.com/hupe1980/fuzzyfeed/tlsh"
	"github.com/hupe1980/fuzzyfeed/track"
)

// artifact generates a deterministic, structured payload.
func artifact(seed byte, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i*31) ^ byte(i>>3)
	}
	return data
}

// mutate flips a sparse set of bytes, simulating a recompiled variant.
func mutate(data []byte) []byte {
	out := append([]byte(nil), data...)
	for i := 50; i < len(out); i += 97 {
		out[i] ^= 0xFF
	}
	return out
}

// releaseServer serves a single-release GitHub API fixture plus its
// asset downloads.
func releaseServer(t *testing.T, repo string, files map[string][]byte) *httptest.Server {
	t.Helper()

	var mux http.ServeMux
	server := httptest.NewServer(&mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/repos/"+repo+"/releases", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"tag_name": "v1.0.0", "draft": false, "published_at": "2026-02-01T10:00:00Z", "assets": [`)
		first := true
		for name, data := range files {
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"name": %q, "size": %d, "browser_download_url": "%s/dl/%s"}`,
				name, len(data), server.URL, name)
		}
		fmt.Fprint(w, `]}]`)
	})
	mux.HandleFunc("/dl/", func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		data, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})

	return server
}

func githubSource(t *testing.T, server *httptest.Server, repo string) *track.GitHub {
	t.Helper()

	src, err := track.NewGitHub(track.SourceConfig{
		SourceID: "github.com/" + repo,
	}, func(o *track.GitHubOptions) {
		o.APIBaseURL = server.URL
	})
	if err != nil {
		t.Fatalf("NewGitHub: %v", err)
	}
	return src
}

func TestEndToEndIngestAndMatch(t *testing.T) {
	base := artifact(1, 8192)
	variant := mutate(base)
	unrelated := artifact(200, 8192)

	serverA := releaseServer(t, "acme/tool", map[string][]byte{"tool-linux-amd64": base})
	serverB := releaseServer(t, "evil/clone", map[string][]byte{
		"clone-linux-amd64": variant,
		"other-linux-amd64": unrelated,
	})

	srcA := githubSource(t, serverA, "acme/tool")
	srcB := githubSource(t, serverB, "evil/clone")

	dir := t.TempDir()
	cursors, err := track.NewFileCursorStore(dir)
	if err != nil {
		t.Fatalf("NewFileCursorStore: %v", err)
	}

	archiveBacking := blobstore.NewMemoryStore()
	metrics := &BasicMetricsCollector{}

	logDir := filepath.Join(dir, "feed")
	open := func() *FuzzyFeed {
		ff, err := Open(
			WithFeedLog(logDir),
			WithSource(srcA, srcA.Config()),
			WithSource(srcB, srcB.Config()),
			WithCursorStore(cursors),
			WithArchive(blobstore.NewArchive(archiveBacking)),
			WithMetricsCollector(metrics),
		)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return ff
	}

	ff := open()

	summary, err := ff.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Status() != pipeline.StatusSuccess {
		t.Fatalf("status = %v, failures: %+v", summary.Status(), summary.Failures)
	}
	if summary.Processed != 3 {
		t.Fatalf("processed = %d, want 3", summary.Processed)
	}

	// A second ingest is a no-op thanks to cursors.
	summary, err = ff.Ingest(context.Background())
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if summary.Processed != 0 {
		t.Errorf("second ingest processed = %d, want 0", summary.Processed)
	}

	// Hunt with a digest of the known-good binary. The variant sits
	// closer to it than the unrelated artifact.
	queryDigest, err := ff.Digest(base)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}

	results := ff.Match(queryDigest).MustExecute(context.Background())
	if len(results) != 3 {
		t.Fatalf("unlimited match results = %d, want 3", len(results))
	}
	if results[0].Entry.Path != "tool-linux-amd64" || results[0].Distance != 0 {
		t.Errorf("closest match should be the artifact itself, got %s at %d",
			results[0].Entry.Path, results[0].Distance)
	}
	if results[1].Entry.Path != "clone-linux-amd64" {
		t.Errorf("second match should be the variant, got %s", results[1].Entry.Path)
	}
	if results[1].Distance >= results[2].Distance {
		t.Errorf("variant distance %d not below unrelated distance %d",
			results[1].Distance, results[2].Distance)
	}

	// A threshold at the variant's distance excludes the unrelated hit.
	variantDigest, err := tlsh.Hash(variant)
	if err != nil {
		t.Fatalf("Hash variant: %v", err)
	}
	threshold := queryDigest.Diff(variantDigest)
	within := ff.Match(queryDigest).MaxDistance(threshold).MustExecute(context.Background())
	if len(within) != 2 {
		t.Errorf("thresholded results = %d, want 2", len(within))
	}

	// Source scoping and limit.
	scoped := ff.Match(queryDigest).Source("github.com/evil/clone").Limit(1).MustExecute(context.Background())
	if len(scoped) != 1 || scoped[0].Entry.Source != "github.com/evil/clone" {
		t.Errorf("scoped results = %+v", scoped)
	}

	// Samples made it to the archive.
	archived, err := archiveBacking.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(archived) != 3 {
		t.Errorf("archived samples = %d, want 3", len(archived))
	}

	if err := ff.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The feed survives a restart via the durable log.
	ff = open()
	defer ff.Close()

	if ff.Len() != 3 {
		t.Fatalf("replayed feed length = %d, want 3", ff.Len())
	}
	replayed := ff.Match(queryDigest).MaxDistance(0).MustExecute(context.Background())
	if len(replayed) != 1 || replayed[0].Entry.Path != "tool-linux-amd64" {
		t.Errorf("exact match after replay = %+v", replayed)
	}

	stats := metrics.GetStats()
	if stats.IngestCount != 2 || stats.IngestProcessed != 3 {
		t.Errorf("metrics ingest count=%d processed=%d", stats.IngestCount, stats.IngestProcessed)
	}
	if stats.MatchCount == 0 {
		t.Error("metrics missed match queries")
	}
}

func TestExportImportExchange(t *testing.T) {
	ff, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ff.Close()

	for i := 0; i < 4; i++ {
		data := artifact(byte(10+i), 4096)
		digest, err := tlsh.Hash(data)
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		err = ff.Append(feed.Entry{
			Source:      "github.com/acme/tool",
			Path:        fmt.Sprintf("asset-%d.bin", i),
			Version:     "v1.0.0",
			Digest:      digest,
			Fingerprint: sha256.Sum256(data),
			Length:      int64(len(data)),
			ComputedAt:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := ff.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	other, err := Open(WithBanding())
	if err != nil {
		t.Fatalf("Open other: %v", err)
	}
	defer other.Close()

	if err := other.Import(&buf); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if other.Len() != 4 {
		t.Fatalf("imported length = %d, want 4", other.Len())
	}

	// Feeds agree on matches after the exchange.
	digest, err := tlsh.Hash(artifact(10, 4096))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	a := ff.Match(digest).MaxDistance(0).MustExecute(context.Background())
	b := other.Match(digest).MaxDistance(0).MustExecute(context.Background())
	if len(a) != 1 || len(b) != 1 || a[0].Entry.Key() != b[0].Entry.Key() {
		t.Errorf("exchange mismatch: %+v vs %+v", a, b)
	}
}

func TestAppendDuplicate(t *testing.T) {
	ff, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ff.Close()

	data := artifact(42, 4096)
	digest, err := ff.Digest(data)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	entry := feed.Entry{
		Source:      "github.com/acme/tool",
		Path:        "tool.bin",
		Version:     "v1.0.0",
		Digest:      digest,
		Fingerprint: sha256.Sum256(data),
		Length:      int64(len(data)),
		ComputedAt:  time.Now().UTC(),
	}

	if err := ff.Append(entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ff.Append(entry); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second append err = %v, want ErrDuplicate", err)
	}
	if ff.Len() != 1 {
		t.Errorf("length = %d, want 1", ff.Len())
	}
}

func TestDigestTooShort(t *testing.T) {
	ff, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ff.Close()

	if _, err := ff.Digest([]byte("tiny")); !errors.Is(err, ErrUndigestible) {
		t.Fatalf("err = %v, want ErrUndigestible", err)
	}
}
