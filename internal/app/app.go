// Package app wires configuration to concrete adapters and use cases.
package app

import (
	"fmt"
	"log/slog"

	"newsrag/config"
	"newsrag/internal/adapter/chunker"
	"newsrag/internal/adapter/cleaner"
	"newsrag/internal/adapter/embedding"
	"newsrag/internal/adapter/fs"
	"newsrag/internal/adapter/index"
	"newsrag/internal/adapter/langdetect"
	"newsrag/internal/adapter/llm"
	"newsrag/internal/adapter/memstore"
	"newsrag/internal/adapter/sqlstore"
	"newsrag/internal/adapter/store"
	"newsrag/internal/port"
	"newsrag/internal/usecase"
)

// App holds the adapters and use cases for one data directory.
type App struct {
	Config *config.Config
	Root   string
	Logger *slog.Logger

	Store    port.Store
	Embedder port.Embedder
	Index    *index.Manager

	Ingest   *usecase.IngestUseCase
	Embed    *usecase.EmbedUseCase
	Indexer  *usecase.IndexUseCase
	Retrieve *usecase.RetrieveUseCase
	Synth    *usecase.SynthesizeUseCase
	Trending *usecase.TrendingUseCase
}

// New opens the configured store and builds every use case. The index
// starts empty; call LoadIndex to read persisted artifacts.
func New(cfg *config.Config, root string, logger *slog.Logger) (*App, error) {
	if err := cfg.EnsureDataDir(root); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := OpenStore(cfg, root, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	if embedder.Dimension() != cfg.Embedding.Dimension {
		st.Close()
		return nil, fmt.Errorf("embedder %s produces %d dimensions, config says %d",
			embedder.ModelName(), embedder.Dimension(), cfg.Embedding.Dimension)
	}

	idx, err := index.New(index.Options{
		Kind:         cfg.Index.Kind,
		Dir:          cfg.IndexDir(root),
		Dimension:    cfg.Embedding.Dimension,
		HNSWM:        cfg.Index.HNSWM,
		HNSWEfSearch: cfg.Index.HNSWEfSearch,
	}, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Root:     root,
		Logger:   logger,
		Store:    st,
		Embedder: embedder,
		Index:    idx,
	}

	a.Ingest = usecase.NewIngestUseCase(
		st,
		fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes),
		cleaner.NewTextCleaner(),
		langdetect.NewDetector(cfg.Language.Languages, cfg.Language.Default, logger),
		chunker.NewSentenceChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapSize, cfg.Chunking.MinChunkSize),
		cfg.Chunking.MinArticleChars,
		logger,
	)
	a.Embed = usecase.NewEmbedUseCase(st, embedder, cfg.Embedding.BatchSize, cfg.Embedding.Workers, logger)
	a.Indexer = usecase.NewIndexUseCase(st, idx, logger)

	queryEmbedder := embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	a.Retrieve = usecase.NewRetrieveUseCase(queryEmbedder, idx, cfg.Retrieve.EmbedTimeout, logger)
	a.Synth = usecase.NewSynthesizeUseCase(a.Retrieve, NewGenerator(cfg, logger), cfg.Generation.Timeout, logger)
	a.Trending = usecase.NewTrendingUseCase(a.Synth, cfg.Retrieve.ScoreThreshold, logger)

	return a, nil
}

// LoadIndex reads the persisted index artifacts.
func (a *App) LoadIndex() error {
	return a.Index.Load()
}

// RetrieveOptions returns the configured retrieval defaults.
func (a *App) RetrieveOptions() usecase.RetrieveOptions {
	return usecase.RetrieveOptions{
		TopK:           a.Config.Retrieve.TopK,
		ScoreThreshold: a.Config.Retrieve.ScoreThreshold,
		IncludeSources: true,
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore opens the configured storage driver. Persistent drivers drop
// stale vectors and requeue every article when the chunking or embedding
// settings changed since they were written; bolt also runs schema
// migrations.
func OpenStore(cfg *config.Config, root string, logger *slog.Logger) (port.Store, error) {
	opts := store.Options{
		Dimension:   cfg.Embedding.Dimension,
		StrictModel: cfg.Embedding.StrictModel,
	}

	switch cfg.Storage.Driver {
	case "memory":
		return memstore.NewMemoryStore(opts), nil
	case "sqlite":
		st, err := sqlstore.NewSQLiteStore(cfg.StorePath(root), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := checkConfigHash(st, cfg, logger); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "bolt", "":
		st, err := store.NewBoltStore(cfg.StorePath(root), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		if err := migrate(st, cfg, logger); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
}

func migrate(st *store.BoltStore, cfg *config.Config, logger *slog.Logger) error {
	result, err := st.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	if result.NeedsRebuild {
		logger.Warn("stored embeddings are stale, clearing them", "reason", result.Reason)
		if err := resetDerived(st); err != nil {
			return err
		}
	} else if result.NeedsMigration {
		logger.Info("running schema migration", "reason", result.Reason)
	}

	if err := st.Migrate(cfg); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// derivedData is implemented by stores that can drop what ingest and embed
// derived from the articles.
type derivedData interface {
	ClearEmbeddings() error
	RequeueArticles() error
}

func resetDerived(st derivedData) error {
	if err := st.ClearEmbeddings(); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	if err := st.RequeueArticles(); err != nil {
		return fmt.Errorf("failed to requeue articles: %w", err)
	}
	return nil
}

func checkConfigHash(st *sqlstore.SQLiteStore, cfg *config.Config, logger *slog.Logger) error {
	current := store.ComputeConfigHash(cfg)
	recorded, err := st.ConfigHash()
	if err != nil {
		return fmt.Errorf("failed to read config hash: %w", err)
	}
	if recorded != "" && recorded != current {
		logger.Warn("stored embeddings are stale, clearing them", "reason", "chunking or embedding configuration changed")
		if err := resetDerived(st); err != nil {
			return err
		}
	}
	if err := st.SetConfigHash(current); err != nil {
		return fmt.Errorf("failed to record config hash: %w", err)
	}
	return nil
}

// NewEmbedder builds the configured embedding backend.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		e, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return e, nil
	case "hash":
		return embedding.NewHashEmbedder(cfg.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

// NewGenerator builds the configured generation backend behind a circuit
// breaker. It returns nil, meaning extractive answers only, when generation
// is disabled or no API key is available.
func NewGenerator(cfg *config.Config, logger *slog.Logger) port.Generator {
	g := cfg.Generation
	switch g.Provider {
	case "openai":
		gen, err := llm.NewOpenAIGenerator(g.APIKeyEnv, g.Model, g.BaseURL, g.Temperature, g.MaxTokens)
		if err != nil {
			logger.Warn("generation disabled, answers will be extractive", "err", err)
			return nil
		}
		return llm.NewBreakerGenerator(gen, g.BreakerFailures, g.BreakerCooldown, logger)
	default:
		return nil
	}
}
