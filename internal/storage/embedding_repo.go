package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EmbeddingStateStore tracks vector index synchronization per note.
type EmbeddingStateStore interface {
	Get(ctx context.Context, noteID string) (*EmbeddingState, error)
	// MarkReady records a successful upsert if hash still matches the stored state.
	MarkReady(ctx context.Context, noteID, hash string) (bool, error)
	// Rehash replaces the stored hash if it still equals oldHash.
	Rehash(ctx context.Context, noteID, oldHash, newHash string) (bool, error)
	// MarkFailed records a failed attempt if hash still matches the stored state.
	MarkFailed(ctx context.Context, noteID, hash string, next time.Time, lastErr string) (bool, error)
	// ListDue returns pending or failed states whose next attempt is due.
	ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]EmbeddingState, error)
	// MarkAllPending resets every note to pending, for a full rebuild of the vector index.
	MarkAllPending(ctx context.Context) (int64, error)
	// Counts returns an owner's notes per status.
	Counts(ctx context.Context, ownerID string) (*SyncCounts, error)
	ListTombstones(ctx context.Context, limit int) ([]Tombstone, error)
	RecordTombstoneFailure(ctx context.Context, noteID, lastErr string) error
	RemoveTombstone(ctx context.Context, noteID string) error
}

// EmbeddingRepo implements EmbeddingStateStore on SQLite.
type EmbeddingRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewEmbeddingRepo creates a new EmbeddingRepo.
func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db, now: time.Now}
}

// markPending puts a note's embedding state back to pending inside tx.
// A ready state whose hash is unchanged is left alone.
func markPending(ctx context.Context, tx *sql.Tx, note *Note, now time.Time) error {
	ts := toUnix(now)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO embedding_state (note_id, text_hash, status, attempts, next_attempt_at, last_error, updated_at)
		 VALUES (?, ?, 'pending', 0, ?, '', ?)
		 ON CONFLICT (note_id) DO UPDATE SET
			text_hash = excluded.text_hash,
			status = 'pending',
			attempts = 0,
			next_attempt_at = excluded.next_attempt_at,
			last_error = '',
			updated_at = excluded.updated_at
		 WHERE embedding_state.text_hash <> excluded.text_hash OR embedding_state.status <> 'ready'`,
		note.ID, note.EmbeddingHash(), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to mark embedding pending: %w", err)
	}
	return nil
}

// Get returns the embedding state of a note.
// Returns nil and ErrNotFound if the note has no state.
func (r *EmbeddingRepo) Get(ctx context.Context, noteID string) (*EmbeddingState, error) {
	var (
		s             EmbeddingState
		status        string
		nextAttemptAt int64
		updatedAt     int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT note_id, text_hash, status, attempts, next_attempt_at, last_error, updated_at
		 FROM embedding_state WHERE note_id = ?`, noteID,
	).Scan(&s.NoteID, &s.TextHash, &status, &s.Attempts, &nextAttemptAt, &s.LastError, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding state: %w", err)
	}
	s.Status = EmbeddingStatus(status)
	s.NextAttemptAt = fromUnix(nextAttemptAt)
	s.UpdatedAt = fromUnix(updatedAt)
	return &s, nil
}

// MarkReady marks the state ready. It returns false when the note changed
// (or disappeared) after the embedding was computed.
// Rehash moves a state onto newHash when it still carries oldHash, putting it
// back to pending. It reports whether the row was changed.
func (r *EmbeddingRepo) Rehash(ctx context.Context, noteID, oldHash, newHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE embedding_state
		 SET text_hash = ?, status = 'pending', updated_at = ?
		 WHERE note_id = ? AND text_hash = ?`,
		newHash, toUnix(r.now()), noteID, oldHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to rehash embedding state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *EmbeddingRepo) MarkReady(ctx context.Context, noteID, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE embedding_state
		 SET status = 'ready', attempts = 0, last_error = '', updated_at = ?
		 WHERE note_id = ? AND text_hash = ?`,
		toUnix(r.now()), noteID, hash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark embedding ready: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkFailed increments attempts and schedules the next attempt.
func (r *EmbeddingRepo) MarkFailed(ctx context.Context, noteID, hash string, next time.Time, lastErr string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE embedding_state
		 SET status = 'failed', attempts = attempts + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE note_id = ? AND text_hash = ?`,
		toUnix(next), lastErr, toUnix(r.now()), noteID, hash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark embedding failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListDue returns states that should be retried now, oldest first.
func (r *EmbeddingRepo) ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]EmbeddingState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT note_id, text_hash, status, attempts, next_attempt_at, last_error, updated_at
		 FROM embedding_state
		 WHERE status IN ('pending', 'failed') AND next_attempt_at <= ? AND attempts < ?
		 ORDER BY next_attempt_at ASC
		 LIMIT ?`,
		toUnix(now), maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due embeddings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var states []EmbeddingState
	for rows.Next() {
		var (
			s             EmbeddingState
			status        string
			nextAttemptAt int64
			updatedAt     int64
		)
		if err := rows.Scan(&s.NoteID, &s.TextHash, &status, &s.Attempts, &nextAttemptAt, &s.LastError, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan embedding state: %w", err)
		}
		s.Status = EmbeddingStatus(status)
		s.NextAttemptAt = fromUnix(nextAttemptAt)
		s.UpdatedAt = fromUnix(updatedAt)
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embedding states: %w", err)
	}
	return states, nil
}

// MarkAllPending resets every state to pending with zero attempts.
func (r *EmbeddingRepo) MarkAllPending(ctx context.Context) (int64, error) {
	ts := toUnix(r.now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE embedding_state
		 SET status = 'pending', attempts = 0, next_attempt_at = ?, last_error = '', updated_at = ?`,
		ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset embedding states: %w", err)
	}
	return res.RowsAffected()
}

// Counts returns the number of an owner's notes per embedding status.
func (r *EmbeddingRepo) Counts(ctx context.Context, ownerID string) (*SyncCounts, error) {
	var c SyncCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN s.status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.status = 'ready' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN s.status = 'failed' THEN 1 ELSE 0 END), 0)
		 FROM embedding_state s
		 JOIN notes n ON n.id = s.note_id
		 WHERE n.owner_id = ?`,
		ownerID,
	).Scan(&c.Pending, &c.Ready, &c.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to count embedding states: %w", err)
	}
	return &c, nil
}

// ListTombstones returns vector entries still waiting for removal, oldest first.
func (r *EmbeddingRepo) ListTombstones(ctx context.Context, limit int) ([]Tombstone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT note_id, attempts, last_error, created_at FROM vector_tombstones
		 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Tombstone
	for rows.Next() {
		var (
			t         Tombstone
			createdAt int64
		)
		if err := rows.Scan(&t.NoteID, &t.Attempts, &t.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		t.CreatedAt = fromUnix(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tombstones: %w", err)
	}
	return out, nil
}

// RecordTombstoneFailure notes a failed vector removal attempt.
func (r *EmbeddingRepo) RecordTombstoneFailure(ctx context.Context, noteID, lastErr string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE vector_tombstones SET attempts = attempts + 1, last_error = ? WHERE note_id = ?`,
		lastErr, noteID)
	if err != nil {
		return fmt.Errorf("failed to update tombstone: %w", err)
	}
	return nil
}

// RemoveTombstone clears a tombstone once the vector entry is gone.
func (r *EmbeddingRepo) RemoveTombstone(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vector_tombstones WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to remove tombstone: %w", err)
	}
	return nil
}
