package config

import (
	"log/slog"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the search service.
type Config struct {
	// Server
	Port           int      `env:"PORT" envDefault:"8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:4200" envSeparator:","`

	// Catalog
	CatalogProvider   string `env:"CATALOG_PROVIDER" envDefault:"csv"` // "csv" or "postgres"
	CatalogPath       string `env:"CATALOG_PATH" envDefault:"nic_2008_all_codes.csv"`
	CatalogCodeColumn string `env:"CATALOG_CODE_COLUMN" envDefault:"niccode"`
	CatalogDescColumn string `env:"CATALOG_DESC_COLUMN" envDefault:"nicdesc"`
	CatalogTable      string `env:"CATALOG_TABLE" envDefault:"nic_codes"`
	DBURL             string `env:"DB_URL"`
	BuildWorkers      int    `env:"BUILD_WORKERS" envDefault:"1"`
	ReindexTimeout    int    `env:"REINDEX_TIMEOUT" envDefault:"1800"` // seconds

	// Embeddings
	EmbeddingProvider string  `env:"EMBEDDING_PROVIDER" envDefault:"openai"` // "openai" or "ollama"
	OpenAIKey         string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string  `env:"OPENAI_BASE_URL"`
	EmbeddingModel    string  `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	OllamaURL         string  `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	EmbedRatePerSec   float64 `env:"EMBED_RATE_PER_SEC" envDefault:"20"`
	EmbedRetries      int     `env:"EMBED_RETRIES" envDefault:"3"`

	// Search
	TopK           int `env:"TOP_K" envDefault:"10"`
	MaxTopK        int `env:"MAX_TOP_K" envDefault:"50"`
	MinQueryLength int `env:"MIN_QUERY_LENGTH" envDefault:"3"`
	MaxQueryLength int `env:"MAX_QUERY_LENGTH" envDefault:"500"`

	// Cache
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"none"` // "redis" or "none"
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"none"` // "nats" or "none"
	QueueURL      string `env:"QUEUE_URL"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
