package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfbed/dspx/internal/config"
	"github.com/wolfbed/dspx/internal/oplog"
	"github.com/wolfbed/dspx/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.GetDefault()
	cfg.SessionRoot = filepath.Join(dir, "sessions")
	cfg.PatternsPath = filepath.Join(dir, "patterns.csv")
	cfg.Workers = 2
	cfg.BatchSize = 3 // small windows to exercise batching
	return cfg
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestRunFullPipeline(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":       "hello world",
		"sub/b.txt":   "hello world",
		"c.txt":       "unique",
		".DS_Store":   "finder junk",
		"sub/d/e.txt": "hello world",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "leftover"), 0755))

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	defer s.Close()

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5), summary.FilesScanned)
	assert.Equal(t, int64(1), summary.ResidualMatches)
	assert.Equal(t, int64(1), summary.DuplicateGroups)
	assert.Equal(t, int64(2*len("hello world")), summary.BytesReclaim)
	assert.Equal(t, int64(0), summary.Unhashable)
	assert.Equal(t, int64(0), summary.Warnings)
	assert.True(t, summary.Clean())

	groups, err := s.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Members, 3)
	assert.Equal(t, filepath.Join(root, "a.txt"), groups[0].Members[0].Path, "shallowest copy is kept")

	residuals, err := s.ResidualMatches()
	require.NoError(t, err)
	require.Len(t, residuals, 1)
	assert.Equal(t, filepath.Join(root, ".DS_Store"), residuals[0].Path)
	assert.Contains(t, residuals[0].Patterns, "ds-store")

	empties, err := s.EmptyDirCandidates()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "leftover")}, empties)
}

func TestRunSkipsResidualsInHashing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".DS_Store": "junk",
		"real.txt":  "content",
	})

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	residual, found, err := s.Store().Get(filepath.Join(root, ".DS_Store"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, residual.Digest, "residual files take no part in duplicate detection")
	assert.Equal(t, store.StateClassified, residual.State)

	real, _, err := s.Store().Get(filepath.Join(root, "real.txt"))
	require.NoError(t, err)
	assert.Equal(t, store.StateHashed, real.State)
	assert.NotEmpty(t, real.Digest)
}

func TestMatchPhaseManyBatches(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"seed.txt": "x"})

	cfg := testConfig(t)
	cfg.BatchSize = 100
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	defer s.Close()

	// Well past several windows, so classification has to interleave read
	// iteration with write commits.
	entries := make([]store.FileEntry, 0, 350)
	for i := 0; i < 350; i++ {
		entries = append(entries, store.FileEntry{
			Path:  fmt.Sprintf("/seeded/%04d/.DS_Store", i),
			State: store.StateDiscovered,
		})
	}
	require.NoError(t, s.Store().PutFileBatch(entries))

	done := make(chan error, 1)
	go func() { done <- s.matchPhase(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("classification did not finish")
	}

	counts, err := s.Store().Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[store.StateDiscovered])
	assert.Equal(t, int64(350), counts[store.StateClassified])
}

func TestWalkPhaseSkipsCompletedRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeTree(t, rootA, map[string]string{"a.txt": "alpha"})
	writeTree(t, rootB, map[string]string{"b.txt": "beta"})

	cfg := testConfig(t)
	s, err := New(cfg, []string{rootA, rootB})
	require.NoError(t, err)
	defer s.Close()

	// Root A is recorded as fully committed by an earlier run.
	require.NoError(t, s.Store().PutMeta(metaWalkDone+":"+s.Roots[0].Path, "1"))

	require.NoError(t, s.walkPhase(context.Background()))

	_, found, err := s.Store().Get(filepath.Join(rootA, "a.txt"))
	require.NoError(t, err)
	assert.False(t, found, "completed roots are not re-enumerated")

	_, found, err = s.Store().Get(filepath.Join(rootB, "b.txt"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestResumeDoesNotRehash(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"x.txt":     "payload",
		"sub/y.txt": "payload",
	})

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	id := s.ID

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Deleting a source after the run would fail any re-hash attempt; a
	// resumed completed session must rely on its committed state instead.
	require.NoError(t, os.Remove(filepath.Join(root, "x.txt")))

	resumed, err := Resume(cfg, id)
	require.NoError(t, err)
	defer resumed.Close()

	summary, err := resumed.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.FilesScanned)
	assert.Equal(t, int64(1), summary.DuplicateGroups)
	assert.Equal(t, int64(0), summary.Unhashable)
}

func TestResumeRestoresRoots(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"f.txt": "x"})

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	id := s.ID
	require.NoError(t, s.Close())

	resumed, err := Resume(cfg, id)
	require.NoError(t, err)
	defer resumed.Close()

	require.Len(t, resumed.Roots, 1)
	assert.Equal(t, root, resumed.Roots[0].Path)
}

func TestResumeUnknownSession(t *testing.T) {
	cfg := testConfig(t)
	_, err := Resume(cfg, "20990101-000000")
	require.Error(t, err)
}

func TestNewRejectsBadRoots(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(cfg, nil)
	require.Error(t, err)

	_, err = New(cfg, []string{filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = New(cfg, []string{file})
	require.Error(t, err)
}

func TestExecuteAppliesApprovedActions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.txt":     "twin content",
		"sub/lose.txt": "twin content",
		".DS_Store":    "junk",
	})

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	groups, err := s.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)

	var actions []oplog.Action
	for _, m := range groups[0].Members[1:] {
		actions = append(actions, oplog.Action{Kind: oplog.KindDeleteFile, Target: m.Path})
	}
	actions = append(actions, oplog.Action{Kind: oplog.KindDeleteFile, Target: filepath.Join(root, ".DS_Store")})

	result, err := s.Execute(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 0, result.Failed)

	assert.FileExists(t, filepath.Join(root, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(root, "sub", "lose.txt"))
	assert.NoFileExists(t, filepath.Join(root, ".DS_Store"))

	// Deleted entries leave the duplicate pool.
	groups, err = s.Groups()
	require.NoError(t, err)
	assert.Empty(t, groups)

	// The emptied subdirectory becomes a prune candidate.
	empties, err := s.EmptyDirCandidates()
	require.NoError(t, err)
	assert.Contains(t, empties, filepath.Join(root, "sub"))
}

func TestEmptyDirChain(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b", "c"), 0755))

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Run(context.Background())
	require.NoError(t, err)

	empties, err := s.EmptyDirCandidates()
	require.NoError(t, err)
	// Children come before parents so the chain prunes in one pass.
	assert.Equal(t, []string{
		filepath.Join(root, "a", "b", "c"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "a"),
	}, empties)
}

func TestListAndRemove(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"f.txt": "x"})

	cfg := testConfig(t)
	s, err := New(cfg, []string{root})
	require.NoError(t, err)
	id := s.ID
	require.NoError(t, s.Close())

	infos, err := List(cfg.SessionRoot)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)

	require.NoError(t, Remove(cfg.SessionRoot, id))
	infos, err = List(cfg.SessionRoot)
	require.NoError(t, err)
	assert.Empty(t, infos)

	require.Error(t, Remove(cfg.SessionRoot, id))
}

func TestListMissingRoot(t *testing.T) {
	infos, err := List(filepath.Join(t.TempDir(), "never"))
	require.NoError(t, err)
	assert.Nil(t, infos)
}
