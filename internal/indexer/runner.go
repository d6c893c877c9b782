package indexer

import (
	"context"
	"fmt"
	"time"

	"fixnote/internal/contextutil"
	"fixnote/internal/storage"
)

// Runner periodically re-queues due embedding states and retries vector
// removals that failed at delete time.
type Runner struct {
	states    storage.EmbeddingStateStore
	sync      *Synchronizer
	interval  time.Duration
	batchSize int
}

// NewRunner creates a retry runner.
func NewRunner(states storage.EmbeddingStateStore, sync *Synchronizer, interval time.Duration) *Runner {
	return &Runner{
		states:    states,
		sync:      sync,
		interval:  interval,
		batchSize: 100,
	}
}

// Run processes once on startup and then on every tick until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index retry runner stopped")
			return nil
		}
	}
}

// RunOnce queues due embeddings and retries pending vector removals.
func (r *Runner) RunOnce(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)

	due, err := r.states.ListDue(ctx, r.sync.now(), r.sync.cfg.MaxAttempts, r.batchSize)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list due embeddings", "error", err)
	}
	queued := 0
	for _, st := range due {
		if r.sync.NoteChanged(st.NoteID) {
			queued++
		}
	}
	if len(due) > 0 {
		logger.InfoContext(ctx, "queued notes for embedding", "due", len(due), "queued", queued)
	}

	tombstones, err := r.states.ListTombstones(ctx, r.batchSize)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list vector tombstones", "error", err)
		return
	}
	for _, t := range tombstones {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := r.sync.NoteDeleted(ctx, t.NoteID); err != nil {
			logger.WarnContext(ctx, "vector removal retry failed", "note_id", t.NoteID, "attempts", t.Attempts+1, "error", err)
		}
	}
}

// Drain synchronously embeds every due note until none is left, without
// using the worker queues. Notes that fail are rescheduled into the future
// and therefore end the loop. It returns the number of notes processed.
func (r *Runner) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		due, err := r.states.ListDue(ctx, r.sync.now(), r.sync.cfg.MaxAttempts, r.batchSize)
		if err != nil {
			return processed, fmt.Errorf("failed to list due embeddings: %w", err)
		}
		if len(due) == 0 {
			return processed, nil
		}
		for _, st := range due {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := r.sync.Sync(ctx, st.NoteID); err != nil {
				return processed, err
			}
			processed++
		}
	}
}
