package feed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src := NewStore()
	entries := []Entry{
		testEntry(t, "github.com/acme/tool", "bin/tool-linux-amd64", "v1.0.0", payload(1, 600)),
		testEntry(t, "github.com/acme/tool", "bin/tool-linux-amd64", "v1.1.0", payload(2, 650)),
		testEntry(t, "github.com/other/kit", "kit.tar.gz", "v0.9.0", payload(3, 4000)),
		testEntry(t, "github.com/other/kit", "README", "v0.9.0", payload(4, 12)), // undigestible
	}
	for _, e := range entries {
		require.NoError(t, src.Append(e))
	}

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(entries))
	assert.Contains(t, lines[3], "\t-\t", "undigestible entry must export the digest placeholder")

	dst := NewStore()
	require.NoError(t, dst.Import(bytes.NewReader(buf.Bytes())))
	require.Equal(t, src.Len(), dst.Len())

	got := dst.Snapshot()
	for i, e := range src.Snapshot() {
		assert.Equal(t, e.Key(), got[i].Key())
		assert.Equal(t, e.Digest, got[i].Digest)
		assert.Equal(t, e.Undigestible, got[i].Undigestible)
		assert.Equal(t, e.Length, got[i].Length)
		assert.True(t, e.ComputedAt.Equal(got[i].ComputedAt))
	}
}

func TestImport_IdempotentOverLiveFeed(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(testEntry(t, "s", "a", "v1", payload(1, 100))))

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))

	// Re-importing an export over the same feed is a no-op.
	require.NoError(t, s.Import(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, 1, s.Len())
}

func TestImport_MalformedLine(t *testing.T) {
	s := NewStore()

	err := s.Import(strings.NewReader("only\tthree\tfields\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
