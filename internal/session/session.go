// Package session owns one bounded, resumable run: its directory, settings
// snapshot, roots, durable store, and operation log.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wolfbed/dspx/internal/config"
	"github.com/wolfbed/dspx/internal/device"
	"github.com/wolfbed/dspx/internal/hasher"
	"github.com/wolfbed/dspx/internal/oplog"
	"github.com/wolfbed/dspx/internal/pattern"
	"github.com/wolfbed/dspx/internal/store"
)

const (
	storeFile    = "session.db"
	oplogFile    = "operations.log"
	settingsFile = "settings.yaml"

	metaRoots     = "roots"
	metaAlgorithm = "algorithm"
	metaCreated   = "created"
	metaWalkDone  = "walk_done"
	metaMatchDone = "match_done"
	metaHashDone  = "hash_done"
	metaPrimary   = "primary_device"
)

// Root is one scan root with its resolved device.
type Root struct {
	Path   string        `json:"path"`
	Device device.Device `json:"device"`
}

// Session is the root aggregate for one run.
type Session struct {
	ID    string
	Dir   string
	Roots []Root

	cfg     *config.Config
	store   *store.Store
	log     *oplog.Log
	matcher *pattern.Matcher

	events chan Event
}

// Event is one progress update published to the UI layer. The core never
// blocks on a slow consumer.
type Event struct {
	Phase   string
	Root    string
	Files   int64
	Bytes   int64
	Hashed  int64
	Pending int64
}

// New creates a session directory under cfg.SessionRoot, classifies the
// roots, snapshots the settings, and opens the store and operation log.
// Device resolution failures are logged and fall back; they never abort.
func New(cfg *config.Config, rootPaths []string) (*Session, error) {
	if len(rootPaths) == 0 {
		return nil, fmt.Errorf("at least one root directory is required")
	}

	id := time.Now().Format("20060102-150405")
	dir := filepath.Join(cfg.SessionRoot, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	roots := make([]Root, 0, len(rootPaths))
	for _, p := range rootPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", p, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %s is not a directory", p)
		}

		dev, err := device.Classify(abs)
		if err != nil {
			slog.Warn("device resolution failed, using fallback", "root", abs, "error", err)
		}
		roots = append(roots, Root{Path: abs, Device: dev})
	}

	s, err := open(cfg, id, dir, roots)
	if err != nil {
		return nil, err
	}

	rootsJSON, err := json.Marshal(roots)
	if err != nil {
		s.Close()
		return nil, err
	}
	for key, value := range map[string]string{
		metaRoots:     string(rootsJSON),
		metaAlgorithm: hasher.Algorithm,
		metaCreated:   time.Now().Format(time.RFC3339),
		metaPrimary:   cfg.PrimaryDevice,
	} {
		if err := s.store.PutMeta(key, value); err != nil {
			s.Close()
			return nil, err
		}
	}

	// Snapshot the settings: resumes run with the settings the session was
	// created with, not whatever the config file says later.
	if err := config.Save(cfg, filepath.Join(dir, settingsFile)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Resume reopens an existing session by ID, restoring its settings snapshot
// and roots. A session recorded with a different digest algorithm is
// rejected: its digests cannot be compared with new ones.
func Resume(cfg *config.Config, id string) (*Session, error) {
	dir := filepath.Join(cfg.SessionRoot, id)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("session %s not found: %w", id, err)
	}

	snapshot, err := config.Load(filepath.Join(dir, settingsFile))
	if err != nil {
		return nil, fmt.Errorf("load session settings: %w", err)
	}
	snapshot.SessionRoot = cfg.SessionRoot

	s, err := open(snapshot, id, dir, nil)
	if err != nil {
		return nil, err
	}

	algo, err := s.store.GetMeta(metaAlgorithm)
	if err != nil {
		s.Close()
		return nil, err
	}
	if algo != "" && algo != hasher.Algorithm {
		s.Close()
		return nil, fmt.Errorf("session %s was hashed with %s; digests cannot be mixed with %s", id, algo, hasher.Algorithm)
	}

	rootsJSON, err := s.store.GetMeta(metaRoots)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := json.Unmarshal([]byte(rootsJSON), &s.Roots); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: bad roots record: %v", store.ErrCorrupt, err)
	}
	return s, nil
}

func open(cfg *config.Config, id, dir string, roots []Root) (*Session, error) {
	st, err := store.Open(filepath.Join(dir, storeFile))
	if err != nil {
		return nil, err
	}
	log, err := oplog.Open(filepath.Join(dir, oplogFile))
	if err != nil {
		st.Close()
		return nil, err
	}

	if err := pattern.EnsureExists(cfg.PatternsPath); err != nil {
		st.Close()
		log.Close()
		return nil, err
	}
	patterns, err := pattern.Load(cfg.PatternsPath)
	if err != nil {
		st.Close()
		log.Close()
		return nil, err
	}
	matcher, err := pattern.NewMatcher(patterns)
	if err != nil {
		st.Close()
		log.Close()
		return nil, err
	}

	return &Session{
		ID:      id,
		Dir:     dir,
		Roots:   roots,
		cfg:     cfg,
		store:   st,
		log:     log,
		matcher: matcher,
		events:  make(chan Event, 64),
	}, nil
}

// Events returns the progress channel. Updates are dropped, not blocked on,
// when the consumer lags.
func (s *Session) Events() <-chan Event { return s.events }

// Store exposes the session store for read queries.
func (s *Session) Store() *store.Store { return s.store }

// Log exposes the operation log.
func (s *Session) Log() *oplog.Log { return s.log }

// Config returns the session's settings snapshot.
func (s *Session) Config() *config.Config { return s.cfg }

// Close releases the store and log.
func (s *Session) Close() error {
	err := s.store.Close()
	if lerr := s.log.Close(); err == nil {
		err = lerr
	}
	return err
}

func (s *Session) publish(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

// Info describes a stored session for listing.
type Info struct {
	ID      string
	Dir     string
	Created time.Time
}

// List enumerates sessions under the session root, newest first.
func List(sessionRoot string) ([]Info, error) {
	entries, err := os.ReadDir(sessionRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info := Info{ID: entry.Name(), Dir: filepath.Join(sessionRoot, entry.Name())}
		if fi, err := entry.Info(); err == nil {
			info.Created = fi.ModTime()
		}
		if created, err := time.Parse("20060102-150405", entry.Name()); err == nil {
			info.Created = created
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Created.After(infos[j].Created)
	})
	return infos, nil
}

// Remove deletes a completed session's directory.
func Remove(sessionRoot, id string) error {
	dir := filepath.Join(sessionRoot, id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("session %s not found: %w", id, err)
	}
	return os.RemoveAll(dir)
}
