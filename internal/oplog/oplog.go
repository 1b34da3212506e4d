// Package oplog is the append-only record of everything a session did to the
// filesystem, and the executor that applies approved actions against it.
package oplog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Kind is the type of a logged event or action.
type Kind string

const (
	KindDeleteFile  Kind = "delete_file"
	KindRemoveDir   Kind = "remove_dir"
	KindWalkWarning Kind = "walk_warning"
	KindHashFailure Kind = "hash_failure"
)

// Outcome of a logged action.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped" // already completed in an earlier run
	OutcomeDryRun  Outcome = "dry_run" // simulated only; never counts as completed
)

// Entry is one log line. Entries are never mutated after write.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	Target    string    `json:"target"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// Log appends JSON-lines entries to a file, synced per append so a crash
// never loses a recorded action.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens the log for appending, creating it if absent.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open operation log: %w", err)
	}
	return &Log{path: path, f: f}, nil
}

// Append writes one entry. The timestamp is filled in when zero.
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append operation log: %w", err)
	}
	return l.f.Sync()
}

// Entries reads the whole log back. Truncated trailing lines from a crash
// mid-write are ignored.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Completed returns the set of actions already applied successfully, keyed
// by kind and target. The executor uses it to make re-runs idempotent.
func (l *Log) Completed() (map[string]bool, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for _, e := range entries {
		if e.Outcome == OutcomeOK {
			done[actionKey(e.Kind, e.Target)] = true
		}
	}
	return done, nil
}

// Close releases the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

func actionKey(kind Kind, target string) string {
	return string(kind) + "\x00" + target
}
