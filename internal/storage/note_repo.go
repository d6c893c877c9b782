package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks fixnote/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// noteColumns selects a full note row from the notes table aliased as n.
const noteColumns = `n.id, n.owner_id, n.content, n.summary, n.source, n.duration_seconds, n.share_token, n.created_at, n.updated_at`

// NoteStore defines the interface for note storage operations.
type NoteStore interface {
	// Create inserts a note together with its lexical entry and a pending embedding state.
	Create(ctx context.Context, note *Note) error
	// Get returns a note by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Note, error)
	// GetMany returns the notes that exist among ids, keyed by ID.
	GetMany(ctx context.Context, ids []string) (map[string]*Note, error)
	// GetByShareToken returns the note carrying token or ErrNotFound.
	GetByShareToken(ctx context.Context, token string) (*Note, error)
	// Update applies patch and bumps updated_at.
	Update(ctx context.Context, id string, patch NotePatch) (*Note, error)
	// SetShareToken sets or clears (empty token) the share token.
	SetShareToken(ctx context.Context, id, token string) (*Note, error)
	// Delete removes the note, its lexical entry and its embedding state,
	// and records a vector tombstone for the caller to clear.
	Delete(ctx context.Context, id string) error
	// List returns a page of an owner's notes, newest first, and the owner's total.
	List(ctx context.Context, ownerID string, limit, offset int) ([]*Note, int, error)
	// Stats aggregates an owner's notes relative to now.
	Stats(ctx context.Context, ownerID string, now time.Time) (*NoteStats, error)
	// Search runs a lexical query over an owner's notes.
	Search(ctx context.Context, ownerID, query string, limit int) ([]LexicalHit, error)
}

// NoteRepo provides methods for note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db      *sql.DB
	lexical lexicalWriter
	now     func() time.Time
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{
		db:      db,
		lexical: ftsIndex{},
		now:     time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNote scans noteColumns followed by any extra destinations.
func scanNote(row rowScanner, extra ...any) (*Note, error) {
	var (
		n          Note
		source     string
		duration   sql.NullInt64
		shareToken sql.NullString
		createdAt  int64
		updatedAt  int64
	)
	dest := append([]any{
		&n.ID, &n.OwnerID, &n.Content, &n.Summary, &source, &duration, &shareToken, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	n.Source = Source(source)
	if duration.Valid {
		d := int(duration.Int64)
		n.DurationSeconds = &d
	}
	n.ShareToken = shareToken.String
	n.CreatedAt = fromUnix(createdAt)
	n.UpdatedAt = fromUnix(updatedAt)
	return &n, nil
}

func nullableDuration(d *int) any {
	if d == nil {
		return nil
	}
	return *d
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a new note. ID and timestamps are assigned when empty.
// The note row, its lexical entry and its pending embedding state are written
// in one transaction; if the lexical entry fails nothing is stored.
func (r *NoteRepo) Create(ctx context.Context, note *Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = r.now().UTC()
	}
	note.UpdatedAt = note.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (id, owner_id, content, summary, source, duration_seconds, share_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.OwnerID, note.Content, note.Summary, string(note.Source),
		nullableDuration(note.DurationSeconds), nullableString(note.ShareToken),
		toUnix(note.CreatedAt), toUnix(note.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	if err := r.lexical.upsert(tx, note); err != nil {
		return err
	}
	if err := markPending(ctx, tx, note, note.UpdatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit note: %w", err)
	}
	return nil
}

// Get gets a note by ID.
// Returns nil and ErrNotFound if not found.
func (r *NoteRepo) Get(ctx context.Context, id string) (*Note, error) {
	note, err := scanNote(r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes n WHERE n.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	return note, nil
}

// GetMany gets all notes whose IDs are in ids. Missing IDs are absent from the map.
func (r *NoteRepo) GetMany(ctx context.Context, ids []string) (map[string]*Note, error) {
	result := make(map[string]*Note, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes n WHERE n.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		result[note.ID] = note
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return result, nil
}

// GetByShareToken gets a note by its share token.
// Returns nil and ErrNotFound if no note carries the token.
func (r *NoteRepo) GetByShareToken(ctx context.Context, token string) (*Note, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	note, err := scanNote(r.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes n WHERE n.share_token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query shared note: %w", err)
	}
	return note, nil
}

// Update applies patch to a note and returns the updated record.
// updated_at always moves forward, even when the clock does not.
// When the text that feeds the embedding changes, the lexical entry is
// rewritten and the embedding state goes back to pending.
func (r *NoteRepo) Update(ctx context.Context, id string, patch NotePatch) (*Note, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	note, err := getTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	textChanged := false
	if patch.Content != nil && *patch.Content != note.Content {
		note.Content = *patch.Content
		textChanged = true
	}
	if patch.Summary != nil && *patch.Summary != note.Summary {
		note.Summary = *patch.Summary
		textChanged = true
	}
	note.UpdatedAt = nextUpdatedAt(note.UpdatedAt, r.now())

	_, err = tx.ExecContext(ctx,
		`UPDATE notes SET content = ?, summary = ?, updated_at = ? WHERE id = ?`,
		note.Content, note.Summary, toUnix(note.UpdatedAt), note.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}

	if textChanged {
		if err := r.lexical.upsert(tx, note); err != nil {
			return nil, err
		}
		if err := markPending(ctx, tx, note, note.UpdatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit note update: %w", err)
	}
	return note, nil
}

// SetShareToken sets the share token of a note, or clears it when token is empty.
func (r *NoteRepo) SetShareToken(ctx context.Context, id, token string) (*Note, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	note, err := getTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	note.ShareToken = token
	note.UpdatedAt = nextUpdatedAt(note.UpdatedAt, r.now())

	_, err = tx.ExecContext(ctx,
		`UPDATE notes SET share_token = ?, updated_at = ? WHERE id = ?`,
		nullableString(token), toUnix(note.UpdatedAt), note.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set share token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit share token: %w", err)
	}
	return note, nil
}

// Delete removes a note with its lexical entry and embedding state.
// A vector tombstone is written in the same transaction; the caller clears it
// once the vector entry is gone.
func (r *NoteRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := r.lexical.remove(tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embedding_state WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete embedding state: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO vector_tombstones (note_id, attempts, last_error, created_at) VALUES (?, 0, '', ?)
		 ON CONFLICT (note_id) DO NOTHING`,
		id, toUnix(r.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to record vector tombstone: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit note deletion: %w", err)
	}
	return nil
}

// List returns an owner's notes ordered by creation time, newest first.
func (r *NoteRepo) List(ctx context.Context, ownerID string, limit, offset int) ([]*Note, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE owner_id = ?`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes n
		 WHERE n.owner_id = ?
		 ORDER BY n.created_at DESC, n.id DESC
		 LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	notes := make([]*Note, 0, limit)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, total, nil
}

// Stats counts an owner's notes in total, per source and over the last 7 and 30 days.
func (r *NoteRepo) Stats(ctx context.Context, ownerID string, now time.Time) (*NoteStats, error) {
	weekAgo := toUnix(now.Add(-7 * 24 * time.Hour))
	monthAgo := toUnix(now.Add(-30 * 24 * time.Hour))

	var stats NoteStats
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN source = 'voice' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source = 'text' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0)
		 FROM notes WHERE owner_id = ?`,
		weekAgo, monthAgo, ownerID,
	).Scan(&stats.Total, &stats.Voice, &stats.Text, &stats.ThisWeek, &stats.ThisMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to compute note stats: %w", err)
	}
	return &stats, nil
}

func getTx(ctx context.Context, tx *sql.Tx, id string) (*Note, error) {
	note, err := scanNote(tx.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes n WHERE n.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	return note, nil
}

// nextUpdatedAt returns now, or prev plus one microsecond when now is not after prev.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
