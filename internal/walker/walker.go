// Package walker enumerates files under session roots in bounded-memory
// batches. Entries stream into the session store rather than accumulating in
// process memory, which is what keeps multi-million-file trees tractable.
package walker

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"

	"github.com/wolfbed/dspx/internal/store"
)

// Sink receives committed batches. The session store is the only production
// implementation; tests substitute their own.
type Sink interface {
	CommitFiles(entries []store.FileEntry) error
	CommitDirs(dirs []string) error
}

// Warning records an entry that was skipped rather than aborting the walk:
// permission errors, files vanished mid-walk, and similar.
type Warning struct {
	Path string
	Err  error
}

// Stats summarizes one root's walk.
type Stats struct {
	Files int64
	Dirs  int64
	Bytes int64
}

// Walker produces restartable, batched walks of root directories. Symbolic
// links are never followed, so traversal cannot escape the roots or loop.
type Walker struct {
	batchSize int
	excludes  []string
}

// New creates a Walker. batchSize bounds how many entries are held in memory
// before a batch is committed to the sink.
func New(batchSize int, excludes []string) *Walker {
	if batchSize < 1 {
		batchSize = 10000
	}
	return &Walker{batchSize: batchSize, excludes: excludes}
}

// Walk enumerates root depth-first and commits entries to the sink in
// batches. Unreadable entries are returned as warnings, never as a failed
// walk. Cancellation is honored between batches so committed batches are
// always complete.
func (w *Walker) Walk(ctx context.Context, root, deviceID string, sink Sink) (Stats, []Warning, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Stats{}, nil, err
	}

	var stats Stats
	var warnings []Warning
	var warnMu sync.Mutex

	addWarning := func(path string, err error) {
		warnMu.Lock()
		warnings = append(warnings, Warning{Path: path, Err: err})
		warnMu.Unlock()
	}

	// fastwalk invokes the callback from multiple goroutines; a single
	// collector goroutine owns batching and commit order.
	entryCh := make(chan store.FileEntry, w.batchSize)
	dirCh := make(chan string, 1024)

	var commitErr error
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		entryCh, dirCh := entryCh, dirCh
		fileBatch := make([]store.FileEntry, 0, w.batchSize)
		dirBatch := make([]string, 0, w.batchSize)

		flush := func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(fileBatch) > 0 {
				if err := sink.CommitFiles(fileBatch); err != nil {
					return err
				}
				fileBatch = fileBatch[:0]
			}
			if len(dirBatch) > 0 {
				if err := sink.CommitDirs(dirBatch); err != nil {
					return err
				}
				dirBatch = dirBatch[:0]
			}
			return nil
		}

		for entryCh != nil || dirCh != nil {
			select {
			case e, ok := <-entryCh:
				if !ok {
					entryCh = nil
					continue
				}
				if commitErr != nil {
					continue // keep draining so producers never block
				}
				fileBatch = append(fileBatch, e)
				if len(fileBatch) >= w.batchSize {
					commitErr = flush()
				}
			case d, ok := <-dirCh:
				if !ok {
					dirCh = nil
					continue
				}
				if commitErr != nil {
					continue
				}
				dirBatch = append(dirBatch, d)
				if len(dirBatch) >= w.batchSize {
					commitErr = flush()
				}
			}
		}
		if commitErr == nil {
			commitErr = flush()
		}
	}()

	conf := &fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(conf, absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			addWarning(path, err)
			return nil
		}
		if path == absRoot {
			return nil
		}
		if w.excluded(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			atomic.AddInt64(&stats.Dirs, 1)
			dirCh <- path
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and special files are neither hashed nor deleted.
			return nil
		}

		info, err := d.Info()
		if err != nil {
			addWarning(path, err)
			return nil
		}

		atomic.AddInt64(&stats.Files, 1)
		atomic.AddInt64(&stats.Bytes, info.Size())
		entryCh <- store.FileEntry{
			Path:     path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			DeviceID: deviceID,
			State:    store.StateDiscovered,
		}
		return nil
	})

	close(entryCh)
	close(dirCh)
	collectorWg.Wait()

	if commitErr != nil {
		return stats, warnings, commitErr
	}
	if walkErr != nil && walkErr != ctx.Err() {
		return stats, warnings, walkErr
	}
	return stats, warnings, ctx.Err()
}

func (w *Walker) excluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.excludes {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		if strings.Contains(pattern, string(filepath.Separator)) && strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
