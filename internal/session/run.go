package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wolfbed/dspx/internal/hasher"
	"github.com/wolfbed/dspx/internal/oplog"
	"github.com/wolfbed/dspx/internal/store"
	"github.com/wolfbed/dspx/internal/walker"
)

// Summary is the final report of a run. It never drops a file's status: every
// discovered entry is accounted for in exactly one of the counters.
type Summary struct {
	FilesScanned    int64
	BytesScanned    int64
	ResidualMatches int64
	DuplicateGroups int64
	BytesReclaim    int64
	Unhashable      int64
	Warnings        int64
}

// Clean reports whether the run completed without warnings or unhashable
// entries.
func (s *Summary) Clean() bool {
	return s.Warnings == 0 && s.Unhashable == 0
}

// storeSink adapts the session store to the walker's batch sink.
type storeSink struct {
	store *store.Store
}

func (ss storeSink) CommitFiles(entries []store.FileEntry) error {
	return ss.store.PutFileBatch(entries)
}

func (ss storeSink) CommitDirs(dirs []string) error {
	return ss.store.PutDirBatch(dirs)
}

// Run drives the pipeline: walk, classify, hash, resolve. Every stage
// commits in atomic batches, and each stage records a completion marker so a
// resumed session redoes at most the batch that was in flight when it died.
func (s *Session) Run(ctx context.Context) (*Summary, error) {
	if err := s.walkPhase(ctx); err != nil {
		return nil, err
	}
	if err := s.matchPhase(ctx); err != nil {
		return nil, err
	}
	if err := s.hashPhase(ctx); err != nil {
		return nil, err
	}
	if err := s.groupPhase(ctx); err != nil {
		return nil, err
	}
	return s.Summarize()
}

func (s *Session) phaseDone(key string) bool {
	v, err := s.store.GetMeta(key)
	return err == nil && v == "1"
}

func (s *Session) markPhase(key string) error {
	return s.store.PutMeta(key, "1")
}

func (s *Session) walkPhase(ctx context.Context) error {
	if s.phaseDone(metaWalkDone) {
		return nil
	}

	w := walker.New(s.cfg.BatchSize, s.cfg.Excludes)
	sink := storeSink{store: s.store}

	var files, bytes int64
	for _, root := range s.Roots {
		// Per-root markers keep a resumed walk from re-enumerating roots
		// that already committed fully.
		rootKey := metaWalkDone + ":" + root.Path
		if s.phaseDone(rootKey) {
			continue
		}

		s.publish(Event{Phase: "walking", Root: root.Path, Files: files, Bytes: bytes})
		slog.Info("walking root", "path", root.Path, "device", root.Device.ID, "rotational", root.Device.Rotational)

		stats, warnings, err := w.Walk(ctx, root.Path, root.Device.ID, sink)
		for _, warn := range warnings {
			if logErr := s.log.Append(oplog.Entry{
				Kind:    oplog.KindWalkWarning,
				Target:  warn.Path,
				Outcome: oplog.OutcomeFailed,
				Detail:  warn.Err.Error(),
			}); logErr != nil {
				return logErr
			}
		}
		if err != nil {
			return fmt.Errorf("walk %s: %w", root.Path, err)
		}
		files += stats.Files
		bytes += stats.Bytes
		s.publish(Event{Phase: "walking", Root: root.Path, Files: files, Bytes: bytes})

		if err := s.markPhase(rootKey); err != nil {
			return err
		}
	}

	return s.markPhase(metaWalkDone)
}

// matchPhase classifies discovered entries against the enabled pattern set.
// Matching is pure computation over paths already in the store. Each window
// is collected under a read transaction and committed after it closes; bbolt
// forbids a write transaction while a read transaction is open on the same
// goroutine.
func (s *Session) matchPhase(ctx context.Context) error {
	if s.phaseDone(metaMatchDone) {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		window, err := s.nextMatchWindow()
		if err != nil {
			return err
		}
		if len(window) == 0 {
			break
		}

		classified := make(map[string][]string, len(window))
		for _, path := range window {
			classified[path] = s.matcher.MatchIDs(path)
		}
		if err := s.store.SetClassification(classified); err != nil {
			return err
		}
	}

	s.publish(Event{Phase: "matching"})
	return s.markPhase(metaMatchDone)
}

// nextMatchWindow collects the next batch of paths awaiting classification.
// Classification advances each entry out of discovered, so repeated windows
// always make progress.
func (s *Session) nextMatchWindow() ([]string, error) {
	window := make([]string, 0, s.cfg.BatchSize)
	err := s.store.ForEachInState(store.StateDiscovered, func(entry store.FileEntry) error {
		window = append(window, entry.Path)
		if len(window) >= s.cfg.BatchSize {
			return errWindowFull
		}
		return nil
	})
	if err != nil && err != errWindowFull {
		return nil, err
	}
	return window, nil
}

// hashPhase digests classified entries window by window. Each window's
// results are committed atomically; cancellation lands between windows so the
// store only ever holds complete batches.
func (s *Session) hashPhase(ctx context.Context) error {
	if s.phaseDone(metaHashDone) {
		return nil
	}

	queueDepths := make(map[string]int, len(s.Roots))
	for _, root := range s.Roots {
		queueDepths[root.Device.ID] = root.Device.QueueDepth
	}

	h := hasher.New(hasher.Config{
		Workers:      s.cfg.Workers,
		MemoryBudget: s.cfg.MemoryBudgetBytes(),
		ChunkSize:    s.cfg.ChunkSize,
		Timeout:      time.Duration(s.cfg.HashTimeout) * time.Second,
		QueueDepths:  queueDepths,
	})

	var hashed int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		window, err := s.nextHashWindow()
		if err != nil {
			return err
		}
		if len(window) == 0 {
			break
		}

		results, err := h.Run(ctx, window)
		if err != nil {
			return err
		}
		if err := s.store.CommitDigests(results); err != nil {
			return err
		}

		for _, r := range results {
			if r.Err != "" {
				if logErr := s.log.Append(oplog.Entry{
					Kind:    oplog.KindHashFailure,
					Target:  r.Path,
					Outcome: oplog.OutcomeFailed,
					Detail:  r.Err,
				}); logErr != nil {
					return logErr
				}
			}
		}

		hashed += int64(len(results))
		s.publish(Event{Phase: "hashing", Hashed: hashed})
	}

	return s.markPhase(metaHashDone)
}

// nextHashWindow collects the next batch of entries awaiting a digest.
// Residual-classified entries are skipped: they are already deletion
// candidates and take no part in duplicate grouping.
func (s *Session) nextHashWindow() ([]store.FileEntry, error) {
	window := make([]store.FileEntry, 0, s.cfg.BatchSize)
	err := s.store.ForEachInState(store.StateClassified, func(entry store.FileEntry) error {
		if len(entry.Patterns) > 0 {
			return nil
		}
		window = append(window, entry)
		if len(window) >= s.cfg.BatchSize {
			return errWindowFull
		}
		return nil
	})
	if err != nil && err != errWindowFull {
		return nil, err
	}
	return window, nil
}

var errWindowFull = fmt.Errorf("window full")

// groupPhase advances hashed entries that landed in a duplicate group.
func (s *Session) groupPhase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	groups, err := s.Groups()
	if err != nil {
		return err
	}

	paths := make([]string, 0, s.cfg.BatchSize)
	for _, g := range groups {
		for _, m := range g.Members {
			paths = append(paths, m.Path)
			if len(paths) >= s.cfg.BatchSize {
				if err := s.store.UpdateStates(paths, store.StateGrouped); err != nil {
					return err
				}
				paths = paths[:0]
			}
		}
	}
	if err := s.store.UpdateStates(paths, store.StateGrouped); err != nil {
		return err
	}

	s.publish(Event{Phase: "resolving"})
	return nil
}
