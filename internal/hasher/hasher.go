// Package hasher computes full-content BLAKE3 digests under joint CPU and
// memory budgets, with per-device concurrency gates so rotational media are
// never swamped with parallel reads.
package hasher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wolfbed/dspx/internal/store"
)

// Algorithm names the digest function. It is recorded in session metadata;
// mixing algorithms within one session's comparison set is invalid.
const Algorithm = "blake3"

// DefaultChunkSize is the read buffer size per in-flight file.
const DefaultChunkSize = 64 * 1024

// Failure describes a non-fatal per-file hashing error. The entry is marked
// unhashable and excluded from duplicate grouping.
type Failure struct {
	Path   string
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("hash %s: %s", f.Path, f.Reason)
}

// Config bounds the hashing stage.
type Config struct {
	Workers      int           // max concurrent hashing tasks
	MemoryBudget int64         // ceiling for in-flight read buffers, bytes
	ChunkSize    int           // read buffer size per task
	Timeout      time.Duration // per-file stall threshold; 0 disables
	QueueDepths  map[string]int
}

// Hasher schedules hashing tasks. The scheduler admits a new task only when
// both the worker budget and the memory budget have room; a full budget
// blocks admission (backpressure) rather than failing the run.
type Hasher struct {
	cfg     Config
	mem     *semaphore.Weighted
	devices map[string]chan struct{}
}

// New creates a Hasher from cfg, filling unset budgets with the defaults:
// min(32, 2*NumCPU) workers and 64 KiB chunks.
func New(cfg Config) *Hasher {
	if cfg.Workers < 1 {
		cfg.Workers = min(32, 2*runtime.NumCPU())
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MemoryBudget < int64(cfg.ChunkSize) {
		cfg.MemoryBudget = int64(cfg.Workers) * int64(cfg.ChunkSize)
	}

	devices := make(map[string]chan struct{}, len(cfg.QueueDepths))
	for id, depth := range cfg.QueueDepths {
		if depth < 1 {
			depth = 1
		}
		devices[id] = make(chan struct{}, depth)
	}

	return &Hasher{
		cfg:     cfg,
		mem:     semaphore.NewWeighted(cfg.MemoryBudget),
		devices: devices,
	}
}

// Run hashes one scheduling window of entries and returns the results in the
// same cardinality (one DigestResult per entry). Per-file errors become
// failed results, never an error return; only cancellation aborts the window.
func (h *Hasher) Run(ctx context.Context, entries []store.FileEntry) ([]store.DigestResult, error) {
	results := make([]store.DigestResult, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Workers)

	for i, entry := range entries {
		g.Go(func() error {
			if err := h.mem.Acquire(ctx, int64(h.cfg.ChunkSize)); err != nil {
				return err
			}
			defer h.mem.Release(int64(h.cfg.ChunkSize))

			if gate := h.devices[entry.DeviceID]; gate != nil {
				select {
				case gate <- struct{}{}:
					defer func() { <-gate }()
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			digest, err := h.hashFile(ctx, entry.Path)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				reason := err.Error()
				var failure *Failure
				if errors.As(err, &failure) {
					reason = failure.Reason
				}
				results[i] = store.DigestResult{Path: entry.Path, Err: reason}
				return nil
			}
			results[i] = store.DigestResult{Path: entry.Path, Digest: digest}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// hashFile digests the full file content, never truncated or sampled.
func (h *Hasher) hashFile(ctx context.Context, path string) (string, error) {
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &Failure{Path: path, Reason: err.Error()}
	}
	defer f.Close()

	hash := blake3.New()
	buf := make([]byte, h.cfg.ChunkSize)
	for {
		// The stall threshold is enforced between chunk reads so a slow
		// file fails alone instead of wedging the pool.
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", &Failure{Path: path, Reason: "timeout"}
			}
			return "", ctx.Err()
		default:
		}

		n, err := f.Read(buf)
		if n > 0 {
			hash.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &Failure{Path: path, Reason: err.Error()}
		}
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
