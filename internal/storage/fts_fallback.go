//go:build !sqlite_fts5

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search falls back to LIKE over the notes table.
	return nil
}

type ftsIndex struct{}

// Content and summary already live in the notes table; nothing extra to write.
func (ftsIndex) upsert(_ *sql.Tx, _ *Note) error { return nil }

func (ftsIndex) remove(_ *sql.Tx, _ string) error { return nil }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// fallbackDoc is the searchable text of a note, lowercased the way SQLite
// lower() does it (ASCII only).
const fallbackDoc = `(lower(n.content) || ' ' || lower(COALESCE(n.summary, '')))`

// Search runs a LIKE-based query over an owner's notes, every term must match.
// Rank is the number of term occurrences per hundred characters of text, so
// short notes dense with the query outrank long notes that mention it once.
// Ties are broken by newest first.
func (r *NoteRepo) Search(ctx context.Context, ownerID, query string, limit int) ([]LexicalHit, error) {
	terms := lexicalTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []LexicalHit{}, nil
	}

	var (
		counts []string
		args   []any
	)
	for _, t := range terms {
		counts = append(counts,
			`(length(`+fallbackDoc+`) - length(replace(`+fallbackDoc+`, ?, ''))) / CAST(length(?) AS REAL)`)
		lower := asciiLower(t)
		args = append(args, lower, lower)
	}
	rank := `(` + strings.Join(counts, " + ") + `) / (1.0 + length(` + fallbackDoc + `) / 100.0)`

	where := []string{"n.owner_id = ?"}
	args = append(args, ownerID)
	for _, t := range terms {
		like := "%" + likeEscaper.Replace(t) + "%"
		where = append(where, `(n.content LIKE ? ESCAPE '\' OR n.summary LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+noteColumns+`, `+rank+` AS rank
		FROM notes n
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY rank DESC, n.created_at DESC
		LIMIT ?
	`, args...)
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

// asciiLower lowercases A-Z only, matching SQLite's built-in lower().
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
