package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"

	"nic-search/internal/cache"
	"nic-search/internal/catalog"
	"nic-search/internal/config"
	"nic-search/internal/embeddings"
	"nic-search/internal/logger"
	"nic-search/internal/queue"
	"nic-search/internal/ranker"
	"nic-search/internal/search"
)

const embedRetryBase = 200 * time.Millisecond

// Searcher answers queries against the published catalog.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]ranker.Result, error)
	Status() search.Status
}

// Reindexer rebuilds and publishes the catalog.
type Reindexer interface {
	Reindex(ctx context.Context) (catalog.BuildStats, error)
	Running() bool
}

// Deps bundles the runtime dependencies of the search service.
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	Catalog *catalog.Catalog
	Indexer Reindexer
	Search  Searcher
	Cache   cache.Cache
	// Queue is nil when QUEUE_PROVIDER=none.
	Queue queue.Queue

	closers []func() error
}

// Build loads env, config, and shared components. The catalog starts empty;
// callers run Indexer.Reindex before serving traffic.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	d := Deps{Config: cfg, Log: log, Catalog: catalog.New()}

	base, err := buildEmbedder(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	src, err := d.buildSource(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize catalog source: %w", err)
	}
	d.Cache = d.buildCache(cfg, log)
	q, err := d.buildQueue(cfg, log)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	d.Queue = q

	svc, err := search.NewService(d.Catalog, embeddings.WithRetry(base, cfg.EmbedRetries, embedRetryBase),
		search.WithLogger(log),
		search.WithCache(d.Cache, time.Duration(cfg.CacheTTL)*time.Second),
		search.WithLimits(search.Limits{
			DefaultK:       cfg.TopK,
			MaxK:           cfg.MaxTopK,
			MinQueryLength: cfg.MinQueryLength,
			MaxQueryLength: cfg.MaxQueryLength,
		}),
	)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize search service: %w", err)
	}
	d.Search = svc

	buildEmbedder := embeddings.WithRetry(
		embeddings.WithRateLimit(base, buildLimiter(cfg.EmbedRatePerSec)),
		cfg.EmbedRetries, embedRetryBase,
	)
	ix, err := catalog.NewIndexer(src, buildEmbedder, d.Catalog,
		catalog.BuildOptions{Workers: cfg.BuildWorkers, Log: log},
		catalog.WithOnSwap(svc.CatalogSwapped),
	)
	if err != nil {
		d.Close()
		return Deps{}, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	d.Indexer = ix
	return d, nil
}

// Close releases connections opened by Build.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.Log != nil {
			d.Log.Warn("close failed", "err", err)
		}
	}
}

func buildEmbedder(cfg config.Config, log *slog.Logger) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
		e, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, openai.EmbeddingModel(cfg.EmbeddingModel))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel)
		return e, nil
	case "ollama":
		e, err := embeddings.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama embedder: %w", err)
		}
		log.Info("using Ollama embedder", "model", cfg.EmbeddingModel, "url", cfg.OllamaURL)
		return e, nil
	default:
		return nil, fmt.Errorf("invalid EMBEDDING_PROVIDER: %s (valid options: openai, ollama)", cfg.EmbeddingProvider)
	}
}

func (d *Deps) buildSource(cfg config.Config, log *slog.Logger) (catalog.Source, error) {
	switch cfg.CatalogProvider {
	case "csv":
		log.Info("using CSV catalog", "path", cfg.CatalogPath)
		return catalog.CSVSource{
			Path:       cfg.CatalogPath,
			CodeColumn: cfg.CatalogCodeColumn,
			DescColumn: cfg.CatalogDescColumn,
		}, nil
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when CATALOG_PROVIDER=postgres")
		}
		src, err := catalog.NewPostgresSource(cfg.DBURL, cfg.CatalogTable, cfg.CatalogCodeColumn, cfg.CatalogDescColumn)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres catalog: %w", err)
		}
		d.closers = append(d.closers, src.Close)
		log.Info("using Postgres catalog", "table", cfg.CatalogTable)
		return src, nil
	default:
		return nil, fmt.Errorf("invalid CATALOG_PROVIDER: %s (valid options: csv, postgres)", cfg.CatalogProvider)
	}
}

// buildCache falls back to the no-op cache when Redis is unreachable.
func (d *Deps) buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.CacheProvider != "redis" {
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable; caching disabled", "addr", cfg.RedisAddr, "err", err)
		return cache.NewNoOpCache()
	}
	d.closers = append(d.closers, c.Close)
	log.Info("using Redis cache", "addr", cfg.RedisAddr, "ttl_s", cfg.CacheTTL)
	return c
}

func (d *Deps) buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "none", "":
		return nil, nil
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("nic-search"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		d.closers = append(d.closers, func() error { nc.Close(); return nil })
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}

// buildLimiter returns nil (unlimited) for non-positive rates.
func buildLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}
