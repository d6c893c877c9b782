package storage

import (
	"database/sql"
	"errors"
	"strings"
	"unicode"
)

// ErrLexicalIndex is returned when the lexical index could not be written.
// The surrounding transaction is rolled back, so the note is left unchanged.
var ErrLexicalIndex = errors.New("lexical index write failed")

// lexicalWriter keeps the lexical index in step with the notes table
// inside the same write transaction.
type lexicalWriter interface {
	upsert(tx *sql.Tx, n *Note) error
	remove(tx *sql.Tx, id string) error
}

// lexicalTerms splits a user query into search terms with surrounding
// punctuation trimmed. Terms without letters or digits are dropped.
func lexicalTerms(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f == "" {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
