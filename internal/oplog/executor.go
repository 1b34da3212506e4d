package oplog

import (
	"context"
	"os"

	"github.com/wolfbed/dspx/internal/store"
)

// Action is one user-approved mutation: delete a file or remove an empty
// directory. The executor never invents actions of its own.
type Action struct {
	Kind   Kind
	Target string
}

// Result summarizes one execution batch.
type Result struct {
	Completed int
	Skipped   int
	Failed    int
	Bytes     int64 // bytes freed by completed file deletions
}

// Executor applies approved actions, one log entry per action including
// failures. Re-running the same action list after a partial failure skips
// actions already completed and retries only the remainder.
type Executor struct {
	log    *Log
	store  *store.Store
	dryRun bool
}

// NewExecutor creates an Executor. store may be nil when executing outside a
// session (entry states are then not updated).
func NewExecutor(log *Log, st *store.Store, dryRun bool) *Executor {
	return &Executor{log: log, store: st, dryRun: dryRun}
}

// Execute applies the actions in order. A failed action is recorded and the
// batch continues; only cancellation or a log write failure aborts.
func (e *Executor) Execute(ctx context.Context, actions []Action) (Result, error) {
	var result Result

	completed, err := e.log.Completed()
	if err != nil {
		return result, err
	}

	var deleted []string
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if completed[actionKey(action.Kind, action.Target)] {
			result.Skipped++
			if err := e.log.Append(Entry{Kind: action.Kind, Target: action.Target, Outcome: OutcomeSkipped, Detail: "already completed"}); err != nil {
				return result, err
			}
			continue
		}

		size, actErr := e.apply(action)
		if actErr != nil {
			result.Failed++
			if err := e.log.Append(Entry{Kind: action.Kind, Target: action.Target, Outcome: OutcomeFailed, Detail: actErr.Error()}); err != nil {
				return result, err
			}
			continue
		}

		result.Completed++
		result.Bytes += size
		if action.Kind == KindDeleteFile {
			deleted = append(deleted, action.Target)
		}
		// Dry-run actions are logged for review but must not satisfy the
		// completed set, or a later real run would skip them.
		outcome := OutcomeOK
		if e.dryRun {
			outcome = OutcomeDryRun
		}
		if err := e.log.Append(Entry{Kind: action.Kind, Target: action.Target, Outcome: outcome}); err != nil {
			return result, err
		}
	}

	if e.store != nil && !e.dryRun {
		if err := e.store.UpdateStates(deleted, store.StateDeleted); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *Executor) apply(action Action) (int64, error) {
	switch action.Kind {
	case KindDeleteFile:
		info, err := os.Lstat(action.Target)
		if err != nil {
			return 0, err
		}
		if e.dryRun {
			return info.Size(), nil
		}
		if err := os.Remove(action.Target); err != nil {
			return 0, err
		}
		return info.Size(), nil

	case KindRemoveDir:
		// Emptiness is re-checked at execution time; a directory that
		// gained content since approval fails instead of being forced.
		if e.dryRun {
			return 0, nil
		}
		return 0, os.Remove(action.Target)

	default:
		return 0, &unknownActionError{kind: action.Kind}
	}
}

type unknownActionError struct {
	kind Kind
}

func (e *unknownActionError) Error() string {
	return "unknown action kind " + string(e.kind)
}
