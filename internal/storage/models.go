package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source describes how a note was captured.
type Source string

const (
	SourceVoice Source = "voice"
	SourceText  Source = "text"
)

// Valid reports whether s is a known note source.
func (s Source) Valid() bool {
	return s == SourceVoice || s == SourceText
}

// maxEmbeddingTextRunes caps the text sent to embedding providers.
const maxEmbeddingTextRunes = 30000

// Note represents a captured note in the database.
type Note struct {
	ID              string // UUID
	OwnerID         string // Telegram user id or any opaque owner identity
	Content         string
	Summary         string // empty when no summary exists
	Source          Source
	DurationSeconds *int   // voice notes only
	ShareToken      string // empty when the note is not shared
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EmbeddingText returns the text that represents the note in the vector index.
// The summary is preferred because it is denser than a raw transcript.
func (n *Note) EmbeddingText() string {
	text := n.Content
	if n.Summary != "" {
		text = n.Summary
	}
	runes := []rune(text)
	if len(runes) > maxEmbeddingTextRunes {
		text = string(runes[:maxEmbeddingTextRunes])
	}
	return text
}

// EmbeddingHash returns the SHA256 hex digest of EmbeddingText.
func (n *Note) EmbeddingHash() string {
	sum := sha256.Sum256([]byte(n.EmbeddingText()))
	return hex.EncodeToString(sum[:])
}

// NotePatch holds optional field updates. Nil fields are left unchanged.
type NotePatch struct {
	Content *string
	Summary *string
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Content == nil && p.Summary == nil
}

// LexicalHit is a note matched by the lexical index with its relevance.
// Higher Rank means a better match.
type LexicalHit struct {
	Note *Note
	Rank float64
}

// NoteStats aggregates an owner's notes.
type NoteStats struct {
	Total     int
	Voice     int
	Text      int
	ThisWeek  int
	ThisMonth int
}

// EmbeddingStatus tracks whether a note's vector entry matches its text.
type EmbeddingStatus string

const (
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingReady   EmbeddingStatus = "ready"
	EmbeddingFailed  EmbeddingStatus = "failed"
)

// EmbeddingState is the synchronization record for one note's vector entry.
type EmbeddingState struct {
	NoteID        string
	TextHash      string
	Status        EmbeddingStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

// SyncCounts counts an owner's notes per embedding status.
type SyncCounts struct {
	Pending int
	Ready   int
	Failed  int
}

// Tombstone is a vector entry that still has to be removed after its note was deleted.
type Tombstone struct {
	NoteID    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}
