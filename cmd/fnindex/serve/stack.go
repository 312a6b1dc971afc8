package servecmder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/cmd/fnindex/sqlitepath"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/fnindex/pkg/embeddings/utils"
	"github.com/papercomputeco/fnindex/pkg/eventstream"
	"github.com/papercomputeco/fnindex/pkg/eventstream/kafka"
	"github.com/papercomputeco/fnindex/pkg/eventstream/nop"
	"github.com/papercomputeco/fnindex/pkg/eventstream/worker"
	"github.com/papercomputeco/fnindex/pkg/metrics"
	"github.com/papercomputeco/fnindex/pkg/registry"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/storage"
	"github.com/papercomputeco/fnindex/pkg/storage/inmemory"
	"github.com/papercomputeco/fnindex/pkg/storage/postgres"
	"github.com/papercomputeco/fnindex/pkg/storage/sqlite"
	"github.com/papercomputeco/fnindex/pkg/vector"
	vectorutils "github.com/papercomputeco/fnindex/pkg/vector/utils"
)

const (
	embeddingTimeout = 60 * time.Second
	initTimeout      = 30 * time.Second
)

// stack holds every component the API server runs on.
type stack struct {
	registry *registry.Registry
	service  *embeddings.Service
	gatherer prometheus.Gatherer
}

// Close releases the registry's drivers and the embedding provider.
func (s *stack) Close() error {
	return errors.Join(s.registry.Close(), s.service.Close())
}

// newStack wires storage, vectors, embeddings, retrieval, events and
// metrics from cfg and initializes the registry.
func newStack(ctx context.Context, cfg *config.Config, configDir string, logger *zap.Logger) (*stack, error) {
	if err := cfg.Retrieval.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval config: %w", err)
	}

	ttl, err := parseTTL(cfg.Embedding.CacheTTL)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(promReg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimensions:   cfg.Embedding.Dimensions,
		Timeout:      embeddingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	service, err := embeddings.NewService(embeddings.ServiceConfig{
		Embedder:       embedder,
		Provider:       cfg.Embedding.Provider,
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		BatchSize:      cfg.Embedding.BatchSize,
		Concurrency:    cfg.Embedding.Concurrency,
		MaxRetries:     cfg.Embedding.MaxRetries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Cache:          embeddings.NewCache(cfg.Embedding.CacheSize, ttl),
		Metrics:        m,
		Logger:         logger,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("creating embedding service: %w", err)
	}

	closers := []func() error{service.Close}
	fail := func(err error) (*stack, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	store, err := newStore(ctx, cfg.Storage, configDir, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store.Close)

	vectors, err := newVectorDriver(cfg.VectorStore, configDir, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, vectors.Close)

	events, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, events.Close)

	engine, err := retrieval.NewEngine(retrieval.Options{
		Embedder: service,
		Vectors:  vectors,
		Source:   store,
		Config:   cfg.Retrieval,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		return fail(fmt.Errorf("creating retrieval engine: %w", err))
	}

	reg, err := registry.New(registry.Deps{
		Store:      store,
		Vectors:    vectors,
		Embeddings: service,
		Engine:     engine,
		Events:     events,
		Metrics:    m,
		Logger:     logger,
	}, registry.Options{
		BatchConcurrency: cfg.Registry.BatchConcurrency,
		Collection: vector.CollectionConfig{
			Name:       cfg.VectorStore.Collection,
			VectorSize: cfg.Embedding.Dimensions,
			Distance:   vector.Distance(cfg.VectorStore.Distance),
		},
	})
	if err != nil {
		return fail(fmt.Errorf("creating registry: %w", err))
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := reg.Init(initCtx); err != nil {
		return fail(fmt.Errorf("initializing registry: %w", err))
	}

	logger.Info("function registry ready",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("vector_store", cfg.VectorStore.Provider),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Uint("dimensions", cfg.Embedding.Dimensions),
		zap.String("events", cfg.Events.Provider),
	)

	return &stack{
		registry: reg,
		service:  service,
		gatherer: promReg,
	}, nil
}

func newStore(ctx context.Context, cfg config.StorageConfig, configDir string, logger *zap.Logger) (storage.Driver, error) {
	switch cfg.Provider {
	case "", "memory":
		logger.Info("using in-memory function store")
		return inmemory.NewDriver(), nil

	case "sqlite":
		path, err := sqlitepath.ResolveSQLitePath(cfg.SQLitePath, configDir, sqlitepath.RecordsFile)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite function store: %w", err)
		}
		logger.Info("using SQLite function store", zap.String("path", path))
		return driver, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres provider")
		}
		driver, err := postgres.NewDriver(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL function store: %w", err)
		}
		logger.Info("using PostgreSQL function store")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage provider %q (memory, sqlite, postgres)", cfg.Provider)
	}
}

func newVectorDriver(cfg config.VectorStoreConfig, configDir string, logger *zap.Logger) (vector.Driver, error) {
	target := cfg.Target
	if cfg.Provider == vectorutils.ProviderSQLite {
		path, err := sqlitepath.ResolveSQLitePath(cfg.Target, configDir, sqlitepath.VectorsFile)
		if err != nil {
			return nil, err
		}
		target = path
	}

	driver, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.Provider,
		TargetURL:    target,
		APIKey:       cfg.APIKey,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	return driver, nil
}

func newPublisher(cfg config.EventsConfig, logger *zap.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		pool, err := worker.NewPool(&worker.Config{
			Publisher: p,
			Logger:    logger,
		})
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("creating event worker pool: %w", err)
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q (none, kafka)", cfg.Provider)
	}
}

// parseTTL parses the cache TTL; empty or "0" disables expiry.
func parseTTL(raw string) (time.Duration, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid embedding.cache_ttl %q: must be a non-negative duration", raw)
	}
	return d, nil
}
