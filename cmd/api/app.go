package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"fixnote/internal/config"
	"fixnote/internal/indexer"
	"fixnote/internal/llm"
	"fixnote/internal/storage"
	"fixnote/internal/vectorstore"
)

// app holds the components shared by every command.
type app struct {
	db          *sql.DB
	notes       *storage.NoteRepo
	states      *storage.EmbeddingRepo
	vectors     vectorstore.VectorStore
	embedder    llm.Embedder
	sync        *indexer.Synchronizer
	runner      *indexer.Runner
	closeVector io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	vectors, closer, err := openVectorStore(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		db:          db,
		notes:       storage.NewNoteRepo(db),
		states:      storage.NewEmbeddingRepo(db),
		vectors:     vectors,
		embedder:    newEmbedder(cfg),
		closeVector: closer,
	}

	syncCfg := indexer.Config{
		Workers:       cfg.SyncWorkers,
		QueueSize:     cfg.SyncQueueSize,
		MaxAttempts:   cfg.SyncMaxAttempts,
		BackoffBase:   cfg.SyncBackoffBase,
		BackoffMax:    cfg.SyncBackoffMax,
		EmbedTimeout:  cfg.EmbeddingTimeout,
		VectorTimeout: indexer.DefaultConfig().VectorTimeout,
		RatePerSecond: cfg.EmbeddingRatePerSec,
	}
	a.sync = indexer.NewSynchronizer(a.notes, a.states, a.embedder, a.vectors, syncCfg)
	a.runner = indexer.NewRunner(a.states, a.sync, cfg.SyncInterval)
	return a, nil
}

func (a *app) Close() {
	if err := a.closeVector.Close(); err != nil {
		slog.Warn("Failed to close vector store", "error", err)
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

func openVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, io.Closer, error) {
	switch cfg.VectorBackend {
	case "pgvector":
		store, err := vectorstore.NewPgVectorStore(cfg.PgVectorDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to pgvector: %w", err)
		}
		if err := store.EnsureSchema(ctx, cfg.VectorSize); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("failed to ensure pgvector schema: %w", err)
		}
		slog.Info("pgvector schema ready", "vector_size", cfg.VectorSize)
		return store, store, nil
	default:
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		if err := store.EnsureCollection(ctx, cfg.VectorSize); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.VectorSize)
		return store, store, nil
	}
}

func newEmbedder(cfg *config.Config) *llm.OpenAIEmbedder {
	baseURL := cfg.EmbeddingBaseURL
	if cfg.EmbeddingProvider == "llamacpp" {
		// llama.cpp serves the OpenAI-compatible API under /v1.
		baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	}
	return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    baseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.VectorSize,
		Provider:   cfg.EmbeddingProvider,
	})
}
