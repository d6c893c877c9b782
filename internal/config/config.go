package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort   string
	DBPath    string
	LogLevel  string
	LogFormat string
	PublicURL string

	AuthMode            string
	TelegramBotToken    string
	AllowedUserIDs      []string
	SemanticSearchUsers []string
	InitDataMaxAge      time.Duration

	VectorBackend    string
	QdrantURL        string
	QdrantCollection string
	VectorSize       int
	PgVectorDSN      string

	EmbeddingProvider   string
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingTimeout    time.Duration
	EmbeddingRatePerSec float64

	SyncWorkers     int
	SyncQueueSize   int
	SyncMaxAttempts int
	SyncBackoffBase time.Duration
	SyncBackoffMax  time.Duration
	SyncInterval    time.Duration

	SearchTimeout time.Duration

	SummaryBaseURL string
	SummaryAPIKey  string
	SummaryModel   string
}

// SummaryEnabled reports whether a summarizer is configured.
func (c *Config) SummaryEnabled() bool {
	return c.SummaryAPIKey != ""
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	loadDotEnv()

	p := &parser{}
	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		DBPath:    getEnv("DB_PATH", "./data/fixnote.db"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		PublicURL: getEnv("PUBLIC_URL", "http://localhost:9000"),

		AuthMode:            strings.ToLower(getEnv("AUTH_MODE", "telegram")),
		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		AllowedUserIDs:      getList("ALLOWED_USER_IDS"),
		SemanticSearchUsers: getList("SEMANTIC_SEARCH_USERS"),
		InitDataMaxAge:      p.duration("INIT_DATA_MAX_AGE", 24*time.Hour),

		VectorBackend:    strings.ToLower(getEnv("VECTOR_BACKEND", "qdrant")),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "notes"),
		VectorSize:       p.int("VECTOR_SIZE", 1536),
		PgVectorDSN:      getEnv("PGVECTOR_DSN", ""),

		EmbeddingProvider:   strings.ToLower(getEnv("EMBEDDING_PROVIDER", "openai")),
		EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingTimeout:    p.duration("EMBEDDING_TIMEOUT", 20*time.Second),
		EmbeddingRatePerSec: p.float("EMBEDDING_RATE_PER_SEC", 5),

		SyncWorkers:     p.int("SYNC_WORKERS", 4),
		SyncQueueSize:   p.int("SYNC_QUEUE_SIZE", 256),
		SyncMaxAttempts: p.int("SYNC_MAX_ATTEMPTS", 8),
		SyncBackoffBase: p.duration("SYNC_BACKOFF_BASE", 5*time.Second),
		SyncBackoffMax:  p.duration("SYNC_BACKOFF_MAX", 30*time.Minute),
		SyncInterval:    p.duration("SYNC_INTERVAL", time.Minute),

		SearchTimeout: p.duration("SEARCH_TIMEOUT", 5*time.Second),

		SummaryBaseURL: getEnv("SUMMARY_BASE_URL", "https://api.deepseek.com"),
		SummaryAPIKey:  getEnv("SUMMARY_API_KEY", ""),
		SummaryModel:   getEnv("SUMMARY_MODEL", "deepseek-chat"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Create the data directory for the SQLite file
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIPort, validation.Required, is.Port),
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.PublicURL, validation.Required, is.URL),
		validation.Field(&c.AuthMode, validation.Required, validation.In("telegram", "header")),
		validation.Field(&c.TelegramBotToken, validation.When(c.AuthMode == "telegram", validation.Required)),
		validation.Field(&c.VectorBackend, validation.Required, validation.In("qdrant", "pgvector")),
		validation.Field(&c.QdrantURL, validation.When(c.VectorBackend == "qdrant", validation.Required, is.URL)),
		validation.Field(&c.QdrantCollection, validation.When(c.VectorBackend == "qdrant", validation.Required)),
		validation.Field(&c.PgVectorDSN, validation.When(c.VectorBackend == "pgvector", validation.Required)),
		validation.Field(&c.VectorSize, validation.Required, validation.Min(1)),
		validation.Field(&c.EmbeddingProvider, validation.Required, validation.In("openai", "llamacpp")),
		validation.Field(&c.EmbeddingBaseURL, validation.When(c.EmbeddingProvider == "llamacpp", validation.Required), is.URL),
		validation.Field(&c.EmbeddingAPIKey, validation.When(c.EmbeddingProvider == "openai" && c.EmbeddingBaseURL == "", validation.Required)),
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.EmbeddingTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.EmbeddingRatePerSec, validation.Min(0.0)),
		validation.Field(&c.SyncWorkers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.SyncQueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.SyncMaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.SyncBackoffBase, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SyncBackoffMax, validation.Required, validation.Min(c.SyncBackoffBase)),
		validation.Field(&c.SyncInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SearchTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SummaryBaseURL, is.URL),
	)
}

// loadDotEnv loads .env from the working directory, then from the nearest
// parent that has one. Missing files are ignored.
func loadDotEnv() {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ { // Limit search depth
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return // Reached filesystem root
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma-separated variable, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser records the first malformed value so Load can report it.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.err = fmt.Errorf("%s must be a valid integer: %w", key, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.err = fmt.Errorf("%s must be a valid number: %w", key, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" || p.err != nil {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.err = fmt.Errorf("%s must be a valid duration: %w", key, err)
		return def
	}
	return v
}
