package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"fixnote/internal/metrics"
)

// OpenAIEmbedder is an embedding provider using the OpenAI-compatible API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	provider   string
}

// OpenAIConfig holds the embedding provider settings.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty means api.openai.com
	Model      string
	Dimensions int
	// Provider labels metrics; defaults to "openai".
	Provider string
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedding provider.
// llama.cpp servers are reached the same way with BaseURL pointing at their /v1.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		provider:   provider,
	}
}

// Embed returns the embedding of text and validates its dimensions.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", ErrEmbeddingProvider)
	}

	vec := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, fmt.Errorf("embedding has size %d, expected %d: %w", len(vec), e.dimensions, ErrEmbeddingProvider)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider).Observe(time.Since(start).Seconds())
	return vec, nil
}

// parseAPIError extracts a readable error from the API response.
// Context errors are passed through so callers can tell a timeout apart.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("embedding request aborted: %w", err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), ErrEmbeddingProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, ErrEmbeddingProvider)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, ErrEmbeddingProvider)
}
