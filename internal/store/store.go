// Package store is the durable, crash-recoverable record of a session's
// progress. All pipeline state flows through its atomic batch commits; the
// in-memory view is always a cache over the store, never the reverse.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// State is a FileEntry's position in the pipeline.
type State string

const (
	StateDiscovered State = "discovered"
	StateClassified State = "classified"
	StateHashed     State = "hashed"
	StateGrouped    State = "grouped"
	StateKept       State = "kept"
	StateDeleted    State = "deleted"
	StateSkipped    State = "skipped"
	// StateUnreadable is the orthogonal terminal state reached from any
	// point after discovery on I/O failure.
	StateUnreadable State = "unreadable"
)

// FileEntry is one filesystem object discovered by the walker. The store
// owns all entries for the session's duration; entries are keyed by path.
type FileEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	DeviceID string    `json:"device_id"`
	State    State     `json:"state"`
	Patterns []string  `json:"patterns,omitempty"` // matched residual pattern IDs
	Digest   string    `json:"digest,omitempty"`   // hex content digest
	Reason   string    `json:"reason,omitempty"`   // why unreadable, if so
}

// DigestResult carries one hashing outcome back into the store. A non-empty
// Err marks the entry unreadable instead of hashed.
type DigestResult struct {
	Path   string
	Digest string
	Err    string
}

// ErrCorrupt signals the store failed its integrity checks. The session must
// be abandoned and restarted; the store is never silently repaired.
var ErrCorrupt = errors.New("session store corrupted")

const formatVersion = "1"

var (
	bucketMeta  = []byte("meta")
	bucketFiles = []byte("files")
	bucketDirs  = []byte("dirs")
)

// Store is a bbolt-backed session store. One write transaction per batch
// gives the atomic commit the resume contract depends on.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketDirs); err != nil {
			return err
		}

		version := meta.Get([]byte("format_version"))
		if version == nil {
			return meta.Put([]byte("format_version"), []byte(formatVersion))
		}
		if string(version) != formatVersion {
			return fmt.Errorf("%w: unsupported format version %s", ErrCorrupt, version)
		}
		return nil
	})
	if err != nil {
		db.Close()
		if errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Store{db: db}, nil
}

// Close releases the store file.
func (s *Store) Close() error { return s.db.Close() }

// PutMeta records a session-level key, committed on its own.
func (s *Store) PutMeta(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
}

// GetMeta reads a session-level key; a missing key returns "".
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		value = string(tx.Bucket(bucketMeta).Get([]byte(key)))
		return nil
	})
	return value, err
}

// PutFileBatch commits one batch of discovered entries atomically: the batch
// is either fully visible after this returns or not at all. Re-inserting a
// path already present keeps the stored entry, so replaying a walk after a
// crash never regresses hashed state.
func (s *Store) PutFileBatch(entries []FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		for _, e := range entries {
			key := []byte(e.Path)
			if files.Get(key) != nil {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode entry %s: %w", e.Path, err)
			}
			if err := files.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutDirBatch records directories seen during the walk so the empty-dir pass
// can revisit them after deletions.
func (s *Store) PutDirBatch(dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDirs)
		for _, d := range dirs {
			if err := bucket.Put([]byte(d), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get looks up one entry by path.
func (s *Store) Get(path string) (FileEntry, bool, error) {
	var entry FileEntry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	return entry, found, err
}

// CommitDigests applies one batch of hashing outcomes atomically. Successful
// results advance entries to hashed; failed ones are marked unreadable with
// their reason. A crash between batches loses only the uncommitted batch.
func (s *Store) CommitDigests(results []DigestResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		for _, r := range results {
			key := []byte(r.Path)
			data := files.Get(key)
			if data == nil {
				return fmt.Errorf("digest for unknown entry %s", r.Path)
			}
			var entry FileEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("%w: entry %s: %v", ErrCorrupt, r.Path, err)
			}
			if r.Err != "" {
				entry.State = StateUnreadable
				entry.Reason = r.Err
			} else {
				entry.State = StateHashed
				entry.Digest = r.Digest
			}
			updated, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := files.Put(key, updated); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateStates moves a batch of entries to the given state in one commit.
func (s *Store) UpdateStates(paths []string, state State) error {
	if len(paths) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		for _, p := range paths {
			key := []byte(p)
			data := files.Get(key)
			if data == nil {
				continue
			}
			var entry FileEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("%w: entry %s: %v", ErrCorrupt, p, err)
			}
			entry.State = state
			updated, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := files.Put(key, updated); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetClassification records matched pattern IDs for a batch of entries and
// advances them to classified, in one commit.
func (s *Store) SetClassification(classified map[string][]string) error {
	if len(classified) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		for path, ids := range classified {
			key := []byte(path)
			data := files.Get(key)
			if data == nil {
				continue
			}
			var entry FileEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("%w: entry %s: %v", ErrCorrupt, path, err)
			}
			entry.Patterns = ids
			if entry.State == StateDiscovered {
				entry.State = StateClassified
			}
			updated, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := files.Put(key, updated); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEach iterates every file entry in key order.
func (s *Store) ForEach(fn func(FileEntry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, data []byte) error {
			var entry FileEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			return fn(entry)
		})
	})
}

// ForEachInState iterates entries currently in the given state.
func (s *Store) ForEachInState(state State, fn func(FileEntry) error) error {
	return s.ForEach(func(entry FileEntry) error {
		if entry.State != state {
			return nil
		}
		return fn(entry)
	})
}

// ForEachDir iterates recorded directories in key order. Key order sorts
// parents before children, so callers wanting bottom-up order reverse it.
func (s *Store) ForEachDir(fn func(string) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDirs).ForEach(func(key, _ []byte) error {
			return fn(string(key))
		})
	})
}

// Counts tallies entries per state.
func (s *Store) Counts() (map[State]int64, error) {
	counts := make(map[State]int64)
	err := s.ForEach(func(entry FileEntry) error {
		counts[entry.State]++
		return nil
	})
	return counts, err
}
