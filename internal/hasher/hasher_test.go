package hasher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfbed/dspx/internal/store"
)

func entryFor(t *testing.T, dir, name, content string) store.FileEntry {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return store.FileEntry{Path: path, Size: int64(len(content)), DeviceID: "dev0"}
}

func TestRunDigestsContent(t *testing.T) {
	dir := t.TempDir()
	entries := []store.FileEntry{
		entryFor(t, dir, "a.txt", "same content"),
		entryFor(t, dir, "b.txt", "same content"),
		entryFor(t, dir, "c.txt", "different content"),
	}

	h := New(Config{Workers: 2})
	results, err := h.Run(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.Empty(t, r.Err)
		assert.Len(t, r.Digest, 64) // 256-bit digest, hex encoded
	}
	assert.Equal(t, results[0].Digest, results[1].Digest, "identical content must agree")
	assert.NotEqual(t, results[0].Digest, results[2].Digest, "different content must differ")
}

func TestRunDeterministic(t *testing.T) {
	dir := t.TempDir()
	entries := []store.FileEntry{entryFor(t, dir, "f.bin", "stable bytes")}

	h := New(Config{})
	first, err := h.Run(context.Background(), entries)
	require.NoError(t, err)
	second, err := h.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, first[0].Digest, second[0].Digest)
}

func TestRunChunkBoundaries(t *testing.T) {
	dir := t.TempDir()
	// Content larger than the chunk size exercises the multi-read loop; the
	// digest must not depend on how reads split the content.
	content := make([]byte, 3*512+17)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))
	entry := store.FileEntry{Path: path, DeviceID: "dev0"}

	small := New(Config{ChunkSize: 512})
	large := New(Config{ChunkSize: 1 << 20})

	a, err := small.Run(context.Background(), []store.FileEntry{entry})
	require.NoError(t, err)
	b, err := large.Run(context.Background(), []store.FileEntry{entry})
	require.NoError(t, err)

	assert.Equal(t, a[0].Digest, b[0].Digest)
}

func TestRunMissingFileBecomesFailedResult(t *testing.T) {
	dir := t.TempDir()
	entries := []store.FileEntry{
		entryFor(t, dir, "ok.txt", "fine"),
		{Path: filepath.Join(dir, "gone.txt"), DeviceID: "dev0"},
	}

	h := New(Config{})
	results, err := h.Run(context.Background(), entries)
	require.NoError(t, err, "per-file errors must not fail the window")
	require.Len(t, results, 2)

	assert.NotEmpty(t, results[0].Digest)
	assert.Empty(t, results[1].Digest)
	assert.NotEmpty(t, results[1].Err)
}

func TestRunEmptyFile(t *testing.T) {
	dir := t.TempDir()
	entries := []store.FileEntry{entryFor(t, dir, "empty", "")}

	h := New(Config{})
	results, err := h.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.NotEmpty(t, results[0].Digest, "empty files still get a digest")
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	entries := []store.FileEntry{entryFor(t, dir, "a", "x")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := New(Config{})
	_, err := h.Run(ctx, entries)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunDeviceGate(t *testing.T) {
	dir := t.TempDir()
	var entries []store.FileEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, entryFor(t, dir, filepath.Base(dir)+string(rune('a'+i)), "content"))
	}
	for i := range entries {
		entries[i].DeviceID = "hdd0"
	}

	h := New(Config{Workers: 8, QueueDepths: map[string]int{"hdd0": 1}})
	results, err := h.Run(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, results, 8)
	for _, r := range results {
		assert.NotEmpty(t, r.Digest)
	}
}

func TestConfigDefaults(t *testing.T) {
	h := New(Config{})
	assert.Greater(t, h.cfg.Workers, 0)
	assert.LessOrEqual(t, h.cfg.Workers, 32)
	assert.Equal(t, DefaultChunkSize, h.cfg.ChunkSize)
	assert.Equal(t, int64(h.cfg.Workers)*int64(DefaultChunkSize), h.cfg.MemoryBudget)
}

func TestFailureTimeoutReason(t *testing.T) {
	// A timeout that has already expired before the first read marks the file
	// unhashable with the stall reason rather than aborting the window.
	dir := t.TempDir()
	entries := []store.FileEntry{entryFor(t, dir, "slow", "content")}

	h := New(Config{Timeout: time.Nanosecond})
	results, err := h.Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, "timeout", results[0].Err)
}
