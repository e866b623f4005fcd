package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/nearby/internal/config"
	"github.com/hyperjump/nearby/internal/embedding"
	"github.com/hyperjump/nearby/internal/geoindex"
	"github.com/hyperjump/nearby/internal/metrics"
	"github.com/hyperjump/nearby/internal/profiletext"
	"github.com/hyperjump/nearby/internal/relevance"
	"github.com/hyperjump/nearby/internal/search"
	"github.com/hyperjump/nearby/internal/storage"
	"github.com/hyperjump/nearby/internal/vectorizer"
)

// Components holds initialized application components.
type Components struct {
	Store      storage.Store
	Embedder   embedding.Embedder
	Metrics    *metrics.Metrics
	Vectorizer *vectorizer.Vectorizer
	Importer   *vectorizer.Importer
	Engine     *search.Engine
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	dims := cfg.Embedding.Dimensions
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(dims)
	case config.DriverPostgres:
		return storage.NewPostgresStore(ctx, storage.PostgresConfig{
			DSN:          cfg.Storage.DSN,
			Dimensions:   dims,
			MaxOpenConns: cfg.Storage.MaxOpenConns,
			MaxIdleConns: cfg.Storage.MaxIdleConns,
		})
	default:
		var opts []storage.SQLiteOption
		if cfg.Storage.GeoIndexPath != "" {
			idx, err := geoindex.NewBleveIndex(cfg.Storage.GeoIndexPath)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize geo index: %w", err)
			}
			opts = append(opts, storage.WithGeoIndex(idx))
			logger.Info("geo index initialized", zap.String("path", cfg.Storage.GeoIndexPath))
		}
		return storage.NewSQLiteStore(cfg.Storage.DatabasePath, dims, opts...)
	}
}

// newEmbedder builds the configured embedder. A missing API key leaves the
// engine running without embeddings; semantic searches then fail with a
// configuration failure and hybrid searches degrade to location.
func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	dims := cfg.Embedding.Dimensions
	var inner embedding.Embedder
	switch cfg.Embedding.Provider {
	case config.ProviderNone:
		return embedding.NewUnavailableEmbedder(dims), nil
	case config.ProviderMock:
		inner = embedding.NewMockEmbedder(dims)
	default:
		openaiEmbedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: dims,
		})
		if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
			logger.Warn("embedding service not configured, semantic search disabled",
				zap.String("env", config.EnvOpenAIAPIKey))
			return embedding.NewUnavailableEmbedder(dims), nil
		}
		if err != nil {
			return nil, err
		}
		inner = openaiEmbedder
	}
	return embedding.NewCachingEmbedder(inner, cfg.Embedding.CacheSize)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Store: store}

	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = emb

	table, err := cfg.Tables.TagTable()
	if err != nil {
		c.Close()
		return nil, err
	}
	expansions, err := cfg.Tables.Expansions()
	if err != nil {
		c.Close()
		return nil, err
	}

	cache, err := vectorizer.NewCache(cfg.Vectorize.CacheSize)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Metrics = metrics.New(metrics.DefaultConfig())
	c.Vectorizer = vectorizer.New(store, store, emb, profiletext.NewBuilder(table), cache,
		vectorizer.WithLogger(logger),
		vectorizer.WithMetrics(c.Metrics),
		vectorizer.WithStaleAfter(cfg.Vectorize.StaleAfter),
		vectorizer.WithConcurrency(cfg.Vectorize.Concurrency),
	)

	filter := relevance.NewFilter(
		relevance.WithExpansions(expansions),
		relevance.WithBypassSimilarity(cfg.Search.BypassSimilarity),
		relevance.WithFailOpen(cfg.Search.FailOpenOrDefault()),
		relevance.WithLogger(logger),
	)
	engineOpts := []search.Option{
		search.WithLogger(logger),
		search.WithMetrics(c.Metrics),
		search.WithFilter(filter),
		search.WithTagTable(table),
	}
	if cfg.Storage.Driver == config.DriverSQLite {
		dbPath, geoPath := cfg.Storage.DatabasePath, cfg.Storage.GeoIndexPath
		engineOpts = append(engineOpts, search.WithFootprint(func() (int64, error) {
			return storage.SQLiteFootprint(dbPath, geoPath)
		}))
	}
	c.Engine = search.NewEngine(store, store, c.Vectorizer, emb, engineConfig(cfg), engineOpts...)

	c.Importer = vectorizer.NewImporter(store, c.Vectorizer,
		vectorizer.WithImportLogger(logger),
		vectorizer.WithEagerVectorize(cfg.Watch.Eager),
		vectorizer.WithExtensions(cfg.Watch.Extensions),
	)

	logger.Info("components initialized",
		zap.String("store_driver", store.Driver()),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Bool("embeddings_available", embedding.Available(emb)),
	)
	return c, nil
}

func engineConfig(cfg *config.Config) search.Config {
	ranking := cfg.Search.Ranking
	return search.Config{
		Defaults:            cfg.Search.Defaults(),
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		Ranking:             &ranking,
	}
}
