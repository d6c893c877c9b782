//go:build sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			note_id UNINDEXED,
			owner_id UNINDEXED,
			content,
			summary,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

type ftsIndex struct{}

func (ftsIndex) upsert(tx *sql.Tx, n *Note) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, n.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	_, err := tx.Exec(`INSERT INTO notes_fts (note_id, owner_id, content, summary) VALUES (?, ?, ?, ?)`,
		n.ID, n.OwnerID, n.Content, n.Summary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	return nil
}

func (ftsIndex) remove(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrLexicalIndex, err)
	}
	return nil
}

// matchExpression quotes every term so user input cannot use FTS5 query syntax.
// Quoted terms are implicitly AND-ed.
func matchExpression(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// Search runs a full-text query over an owner's notes.
// Rank is the negated bm25 score, so higher is better; ties are broken by newest first.
func (r *NoteRepo) Search(ctx context.Context, ownerID, query string, limit int) ([]LexicalHit, error) {
	terms := lexicalTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []LexicalHit{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+noteColumns+`, -bm25(notes_fts) AS rank
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.note_id
		WHERE notes_fts MATCH ? AND notes_fts.owner_id = ? AND n.owner_id = ?
		ORDER BY rank DESC, n.created_at DESC
		LIMIT ?
	`, matchExpression(terms), ownerID, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	hits := make([]LexicalHit, 0, limit)
	for rows.Next() {
		var rank float64
		note, err := scanNote(rows, &rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, LexicalHit{Note: note, Rank: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search hits: %w", err)
	}
	return hits, nil
}
