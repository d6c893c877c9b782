package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fixnote/internal/contextutil"
	"fixnote/internal/llm"
	"fixnote/internal/metrics"
	"fixnote/internal/storage"
	"fixnote/internal/vectorstore"
)

// NoteReader loads notes for re-embedding.
type NoteReader interface {
	Get(ctx context.Context, id string) (*storage.Note, error)
}

// Config tunes the vector index synchronization.
type Config struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	EmbedTimeout  time.Duration
	VectorTimeout time.Duration
	RatePerSecond float64 // 0 disables throttling
}

// DefaultConfig returns settings suitable for a single small instance.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		QueueSize:     256,
		MaxAttempts:   8,
		BackoffBase:   5 * time.Second,
		BackoffMax:    30 * time.Minute,
		EmbedTimeout:  20 * time.Second,
		VectorTimeout: 10 * time.Second,
		RatePerSecond: 5,
	}
}

// Synchronizer keeps the vector index eventually consistent with the note store.
// The lexical index is written inside the note transaction by storage; this
// type owns the asynchronous side: embedding notes, upserting vectors, retrying
// failures with backoff and removing vectors of deleted notes.
//
// Jobs are sharded by note ID so all work for one note runs on one worker, in order.
type Synchronizer struct {
	notes    NoteReader
	states   storage.EmbeddingStateStore
	embedder llm.Embedder
	vectors  vectorstore.VectorStore
	limiter  *rate.Limiter
	cfg      Config
	queues   []chan string
	now      func() time.Time

	mu     sync.Mutex
	queued map[string]struct{}
}

// NewSynchronizer creates a new Synchronizer. Call Run to start its workers.
func NewSynchronizer(
	notes NoteReader,
	states storage.EmbeddingStateStore,
	embedder llm.Embedder,
	vectors vectorstore.VectorStore,
	cfg Config,
) *Synchronizer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	queues := make([]chan string, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan string, cfg.QueueSize)
	}

	return &Synchronizer{
		notes:    notes,
		states:   states,
		embedder: embedder,
		vectors:  vectors,
		limiter:  limiter,
		cfg:      cfg,
		queues:   queues,
		now:      time.Now,
		queued:   make(map[string]struct{}),
	}
}

// NoteChanged schedules a note for (re-)embedding. It never blocks.
// It returns false when the note's queue is full; the retry runner picks the
// note up later because its state stays pending.
func (s *Synchronizer) NoteChanged(noteID string) bool {
	s.mu.Lock()
	if _, ok := s.queued[noteID]; ok {
		s.mu.Unlock()
		return true
	}
	s.queued[noteID] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queues[s.shard(noteID)] <- noteID:
		metrics.SyncQueueDepth.Inc()
		return true
	default:
		s.mu.Lock()
		delete(s.queued, noteID)
		s.mu.Unlock()
		metrics.SyncJobsTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// NoteDeleted removes a deleted note's vector entry. The caller has already
// removed the note and written a tombstone; the tombstone is cleared on success
// and kept for the retry runner on failure.
func (s *Synchronizer) NoteDeleted(ctx context.Context, noteID string) error {
	vctx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	defer cancel()

	if err := s.vectors.Delete(vctx, []string{noteID}); err != nil {
		metrics.VectorDeletesTotal.WithLabelValues("failed").Inc()
		if recErr := s.states.RecordTombstoneFailure(ctx, noteID, err.Error()); recErr != nil {
			contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to record tombstone failure", "note_id", noteID, "error", recErr)
		}
		return fmt.Errorf("failed to delete vector: %w", err)
	}

	metrics.VectorDeletesTotal.WithLabelValues("deleted").Inc()
	if err := s.states.RemoveTombstone(ctx, noteID); err != nil {
		return err
	}
	return nil
}

// Run starts the workers and blocks until ctx is cancelled.
// Jobs still queued at shutdown stay pending in the database.
func (s *Synchronizer) Run(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "index synchronizer started", "workers", len(s.queues))

	var wg sync.WaitGroup
	for i := range s.queues {
		wg.Add(1)
		go func(queue <-chan string) {
			defer wg.Done()
			s.work(ctx, queue)
		}(s.queues[i])
	}
	wg.Wait()

	logger.InfoContext(ctx, "index synchronizer stopped")
	return nil
}

func (s *Synchronizer) work(ctx context.Context, queue <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case noteID := <-queue:
			metrics.SyncQueueDepth.Dec()
			s.mu.Lock()
			delete(s.queued, noteID)
			s.mu.Unlock()

			if err := s.Sync(ctx, noteID); err != nil {
				contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "index sync failed", "note_id", noteID, "error", err)
			}
		}
	}
}

func (s *Synchronizer) shard(noteID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(noteID))
	return int(h.Sum32() % uint32(len(s.queues)))
}

// Sync brings one note's vector entry up to date.
// Embedding and vector failures are recorded on the note's state and are not
// returned; only bookkeeping failures are.
func (s *Synchronizer) Sync(ctx context.Context, noteID string) error {
	logger := contextutil.LoggerFromContext(ctx).With("note_id", noteID)

	// The state is read before the note: a note update commits both together,
	// so a note read afterwards is never older than the state.
	state, err := s.states.Get(ctx, noteID)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.SyncJobsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load embedding state: %w", err)
	}

	note, err := s.notes.Get(ctx, noteID)
	if errors.Is(err, storage.ErrNotFound) {
		metrics.SyncJobsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load note: %w", err)
	}

	hash := note.EmbeddingHash()
	if state.Status == storage.EmbeddingReady && state.TextHash == hash {
		metrics.SyncJobsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	// A stored hash computed from an older embedding text rule would never
	// match again. Adopt the current one.
	if state.TextHash != hash {
		ok, err := s.states.Rehash(ctx, noteID, state.TextHash, hash)
		if err != nil {
			return err
		}
		if !ok {
			metrics.SyncJobsTotal.WithLabelValues("stale").Inc()
			return nil
		}
		state.TextHash = hash
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	vec, err := s.embed(ctx, note)
	if err == nil {
		err = s.upsert(ctx, note, vec)
	}
	if err != nil {
		return s.recordFailure(ctx, state, hash, err)
	}

	ok, err := s.states.MarkReady(ctx, noteID, hash)
	if err != nil {
		return err
	}
	if ok {
		metrics.SyncJobsTotal.WithLabelValues("ready").Inc()
		logger.DebugContext(ctx, "note embedded")
		return nil
	}

	// The note changed or disappeared while it was being embedded.
	metrics.SyncJobsTotal.WithLabelValues("stale").Inc()
	if _, err := s.notes.Get(ctx, noteID); errors.Is(err, storage.ErrNotFound) {
		vctx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
		defer cancel()
		if err := s.vectors.Delete(vctx, []string{noteID}); err != nil {
			logger.WarnContext(ctx, "failed to remove vector of deleted note", "error", err)
		}
	}
	return nil
}

func (s *Synchronizer) embed(ctx context.Context, note *storage.Note) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()
	return s.embedder.Embed(ectx, note.EmbeddingText())
}

func (s *Synchronizer) upsert(ctx context.Context, note *storage.Note, vec []float32) error {
	vctx, cancel := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	defer cancel()
	return s.vectors.Upsert(vctx, []vectorstore.Point{{
		ID:        note.ID,
		Vec:       vec,
		OwnerID:   note.OwnerID,
		CreatedAt: note.CreatedAt,
	}})
}

func (s *Synchronizer) recordFailure(ctx context.Context, state *storage.EmbeddingState, hash string, cause error) error {
	logger := contextutil.LoggerFromContext(ctx)
	attempt := state.Attempts + 1
	next := s.now().Add(Backoff(attempt, s.cfg.BackoffBase, s.cfg.BackoffMax))

	if _, err := s.states.MarkFailed(ctx, state.NoteID, hash, next, cause.Error()); err != nil {
		return err
	}
	metrics.SyncJobsTotal.WithLabelValues("failed").Inc()

	if attempt >= s.cfg.MaxAttempts {
		logger.ErrorContext(ctx, "giving up on note embedding", "note_id", state.NoteID, "attempts", attempt, "error", cause)
		return nil
	}
	logger.WarnContext(ctx, "note embedding failed, will retry", "note_id", state.NoteID, "attempt", attempt, "next_attempt_at", next, "error", cause)
	return nil
}

// Backoff returns base * 2^(attempt-1), capped at maxDelay.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay || d <= 0 {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}
