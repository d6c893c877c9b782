package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks fixnote/internal/vectorstore VectorStore

import (
	"context"
	"time"
)

// Point is a note's vector entry. ID is the note ID.
type Point struct {
	ID        string
	Vec       []float32
	OwnerID   string
	CreatedAt time.Time
}

// SearchResult represents a search result from vector search.
// Score is cosine similarity, higher is more similar.
type SearchResult struct {
	PointID string
	Score   float32
	OwnerID string
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to k points owned by ownerID, most similar first.
	Search(ctx context.Context, query []float32, ownerID string, k int) ([]SearchResult, error)

	// Delete removes points by their IDs. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
