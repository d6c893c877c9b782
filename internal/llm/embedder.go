package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks fixnote/internal/llm Embedder

import (
	"context"
	"errors"
)

// ErrEmbeddingProvider is wrapped by every embedding failure caused by the provider.
var ErrEmbeddingProvider = errors.New("embedding provider error")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
