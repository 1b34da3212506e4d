package oplog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfbed/dspx/internal/store"
)

func TestExecuteDeletesFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dupe.txt")
	require.NoError(t, os.WriteFile(target, []byte("duplicate"), 0644))

	l := openTestLog(t)
	ex := NewExecutor(l, nil, false)

	result, err := ex.Execute(context.Background(), []Action{{Kind: KindDeleteFile, Target: target}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, int64(len("duplicate")), result.Bytes)
	assert.NoFileExists(t, target)

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, OutcomeOK, entries[0].Outcome)
}

func TestExecuteIdempotentRerun(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "once.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	l := openTestLog(t)
	ex := NewExecutor(l, nil, false)
	actions := []Action{{Kind: KindDeleteFile, Target: target}}

	first, err := ex.Execute(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Completed)

	// The file is gone; without the log a re-run would fail on Lstat.
	second, err := ex.Execute(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Completed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Failed)
}

func TestExecuteFailureContinues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("ok"), 0644))

	l := openTestLog(t)
	ex := NewExecutor(l, nil, false)

	result, err := ex.Execute(context.Background(), []Action{
		{Kind: KindDeleteFile, Target: filepath.Join(dir, "missing.txt")},
		{Kind: KindDeleteFile, Target: good},
	})
	require.NoError(t, err, "per-action failures must not abort the batch")

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Completed)
	assert.NoFileExists(t, good)

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, OutcomeFailed, entries[0].Outcome)
	assert.NotEmpty(t, entries[0].Detail)
}

func TestExecuteRemoveDir(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	require.NoError(t, os.MkdirAll(empty, 0755))
	require.NoError(t, os.MkdirAll(full, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(full, "late.txt"), []byte("arrived after approval"), 0644))

	l := openTestLog(t)
	ex := NewExecutor(l, nil, false)

	result, err := ex.Execute(context.Background(), []Action{
		{Kind: KindRemoveDir, Target: empty},
		{Kind: KindRemoveDir, Target: full},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed, "a directory that gained content must not be forced")
	assert.NoDirExists(t, empty)
	assert.DirExists(t, full)
}

func TestExecuteDryRun(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "kept.txt")
	require.NoError(t, os.WriteFile(target, []byte("content"), 0644))

	l := openTestLog(t)
	ex := NewExecutor(l, nil, true)

	result, err := ex.Execute(context.Background(), []Action{{Kind: KindDeleteFile, Target: target}})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, int64(len("content")), result.Bytes)
	assert.FileExists(t, target, "dry run must not delete")
}

func TestDryRunDoesNotSatisfyRealRun(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dupe.txt")
	require.NoError(t, os.WriteFile(target, []byte("payload"), 0644))

	l := openTestLog(t)
	actions := []Action{{Kind: KindDeleteFile, Target: target}}

	dry, err := NewExecutor(l, nil, true).Execute(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Completed)
	assert.FileExists(t, target)

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, OutcomeDryRun, entries[0].Outcome)

	done, err := l.Completed()
	require.NoError(t, err)
	assert.Empty(t, done, "simulated actions must not count as completed")

	applied, err := NewExecutor(l, nil, false).Execute(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Completed)
	assert.Equal(t, 0, applied.Skipped)
	assert.NoFileExists(t, target)
}

func TestExecuteUpdatesStoreStates(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "dupe.bin")
	require.NoError(t, os.WriteFile(target, []byte("z"), 0644))

	st, err := store.Open(filepath.Join(dir, "session.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.PutFileBatch([]store.FileEntry{
		{Path: target, Size: 1, State: store.StateGrouped},
	}))

	l := openTestLog(t)
	ex := NewExecutor(l, st, false)

	_, err = ex.Execute(context.Background(), []Action{{Kind: KindDeleteFile, Target: target}})
	require.NoError(t, err)

	entry, found, err := st.Get(target)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, store.StateDeleted, entry.State)
}

func TestExecuteCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := openTestLog(t)
	ex := NewExecutor(l, nil, false)
	_, err := ex.Execute(ctx, []Action{{Kind: KindDeleteFile, Target: "/never"}})
	assert.ErrorIs(t, err, context.Canceled)
}
