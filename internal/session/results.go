package session

import (
	"context"
	"os"
	"sort"

	"github.com/wolfbed/dspx/internal/oplog"
	"github.com/wolfbed/dspx/internal/resolver"
	"github.com/wolfbed/dspx/internal/store"
)

// Groups resolves duplicate groups from the store's digest records.
func (s *Session) Groups() ([]resolver.Group, error) {
	var entries []store.FileEntry
	err := s.store.ForEach(func(entry store.FileEntry) error {
		if entry.Digest == "" || entry.State == store.StateDeleted || entry.State == store.StateUnreadable {
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	primary, err := s.store.GetMeta(metaPrimary)
	if err != nil {
		return nil, err
	}
	return resolver.New(primary).Resolve(entries), nil
}

// ResidualMatch pairs a path with the pattern IDs it matched.
type ResidualMatch struct {
	Path     string
	Size     int64
	IsDir    bool
	Patterns []string
}

// ResidualMatches returns files and directories classified as OS residuals,
// files first, each sorted by path.
func (s *Session) ResidualMatches() ([]ResidualMatch, error) {
	var matches []ResidualMatch
	err := s.store.ForEach(func(entry store.FileEntry) error {
		if len(entry.Patterns) == 0 || entry.State == store.StateDeleted {
			return nil
		}
		matches = append(matches, ResidualMatch{
			Path:     entry.Path,
			Size:     entry.Size,
			Patterns: entry.Patterns,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Residual patterns match directories too (caches like __pycache__).
	err = s.store.ForEachDir(func(dir string) error {
		if ids := s.matcher.MatchIDs(dir); len(ids) > 0 {
			matches = append(matches, ResidualMatch{Path: dir, IsDir: true, Patterns: ids})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].IsDir != matches[j].IsDir {
			return !matches[i].IsDir
		}
		return matches[i].Path < matches[j].Path
	})
	return matches, nil
}

// EmptyDirCandidates revisits directories recorded during the walk and
// returns those now empty, children before parents so the whole chain can be
// pruned in one pass. A directory whose only remaining content is other
// candidates counts as empty.
func (s *Session) EmptyDirCandidates() ([]string, error) {
	var dirs []string
	err := s.store.ForEachDir(func(dir string) error {
		dirs = append(dirs, dir)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse-lexicographic order puts children ahead of their parents.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	candidate := make(map[string]bool)
	var candidates []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // vanished or unreadable, not a candidate
		}
		empty := true
		for _, entry := range entries {
			if entry.IsDir() && candidate[joinDir(dir, entry.Name())] {
				continue
			}
			empty = false
			break
		}
		if empty {
			candidate[dir] = true
			candidates = append(candidates, dir)
		}
	}
	return candidates, nil
}

func joinDir(dir, name string) string {
	return dir + string(os.PathSeparator) + name
}

// Execute applies a user-approved action list through the operation log.
func (s *Session) Execute(ctx context.Context, actions []oplog.Action) (oplog.Result, error) {
	exec := oplog.NewExecutor(s.log, s.store, s.cfg.DryRun)
	return exec.Execute(ctx, actions)
}

// Summarize tallies the run from the store and operation log.
func (s *Session) Summarize() (*Summary, error) {
	summary := &Summary{}

	err := s.store.ForEach(func(entry store.FileEntry) error {
		summary.FilesScanned++
		summary.BytesScanned += entry.Size
		if entry.State == store.StateUnreadable {
			summary.Unhashable++
		}
		if len(entry.Patterns) > 0 {
			summary.ResidualMatches++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	groups, err := s.Groups()
	if err != nil {
		return nil, err
	}
	summary.DuplicateGroups = int64(len(groups))
	for _, g := range groups {
		summary.BytesReclaim += g.Wasted()
	}

	logEntries, err := s.log.Entries()
	if err != nil {
		return nil, err
	}
	for _, e := range logEntries {
		if e.Kind == oplog.KindWalkWarning {
			summary.Warnings++
		}
	}
	return summary, nil
}
