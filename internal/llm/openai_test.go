package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fixnote/internal/metrics"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	tests := []struct {
		name       string
		dimensions int
		status     int
		body       string
		wantErr    bool
		wantLen    int
	}{
		{
			name:       "success",
			dimensions: 3,
			status:     http.StatusOK,
			body:       `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"m","usage":{"prompt_tokens":2,"total_tokens":2}}`,
			wantLen:    3,
		},
		{
			name:       "dimension mismatch",
			dimensions: 4,
			status:     http.StatusOK,
			body:       `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"m"}`,
			wantErr:    true,
		},
		{
			name:    "empty data",
			status:  http.StatusOK,
			body:    `{"object":"list","data":[],"model":"m"}`,
			wantErr: true,
		},
		{
			name:    "api error",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"rate limited","type":"rate_limit"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/embeddings" {
					t.Errorf("path = %s, want /v1/embeddings", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			embedder := NewOpenAIEmbedder(OpenAIConfig{
				APIKey:     "test-key",
				BaseURL:    server.URL + "/v1",
				Model:      "text-embedding-3-small",
				Dimensions: tt.dimensions,
			})
			vec, err := embedder.Embed(context.Background(), "hello")

			if tt.wantErr {
				if !errors.Is(err, ErrEmbeddingProvider) {
					t.Errorf("Embed() error = %v, want ErrEmbeddingProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed() unexpected error: %v", err)
			}
			if len(vec) != tt.wantLen {
				t.Errorf("Embed() size = %d, want %d", len(vec), tt.wantLen)
			}
		})
	}
}

func TestOpenAIEmbedder_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices the client going away once the body is read.
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1", Model: "m"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := embedder.Embed(ctx, "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Embed() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestOpenAIEmbedder_ProviderLabel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.5]}]}`))
	}))
	defer server.Close()

	before := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("llamacpp", "success"))

	embedder := NewOpenAIEmbedder(OpenAIConfig{BaseURL: server.URL + "/v1", Model: "m", Provider: "llamacpp"})
	if _, err := embedder.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}

	after := testutil.ToFloat64(metrics.EmbeddingRequestsTotal.WithLabelValues("llamacpp", "success"))
	if after-before != 1 {
		t.Errorf("llamacpp success count grew by %v, want 1", after-before)
	}
}
