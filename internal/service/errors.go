package service

import (
	"errors"
	"fmt"

	"fixnote/internal/storage"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested note does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the requester does not own the note and holds no valid share token.
	ErrForbidden = errors.New("forbidden")
	// ErrStorageUnavailable is returned when the note store or vector index cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEmbeddingUnavailable is returned when a semantic query cannot be embedded.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIndexInconsistent is returned when the lexical index rejected a write; nothing was stored.
	ErrIndexInconsistent = errors.New("lexical index write failed")
	// ErrPartialDelete marks a delete whose vector entry removal failed. The note itself is gone.
	ErrPartialDelete = errors.New("note deleted but vector entry removal failed")
	// ErrSemanticSearchForbidden is returned when the caller may not use semantic search.
	ErrSemanticSearchForbidden = errors.New("semantic search not allowed")
	// ErrSearchTimeout is returned when a query does not finish in time.
	ErrSearchTimeout = errors.New("search timed out")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// storeError translates a storage error into the service taxonomy.
func storeError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrLexicalIndex):
		return fmt.Errorf("%s: %w: %v", msg, ErrIndexInconsistent, err)
	default:
		return fmt.Errorf("%s: %w: %v", msg, ErrStorageUnavailable, err)
	}
}
