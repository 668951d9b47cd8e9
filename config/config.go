package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for newsrag.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Language   LanguageConfig   `yaml:"language"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig selects the persistence driver for articles, chunks and embeddings.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "bolt", "sqlite", "memory"
	Dir    string `yaml:"dir"`
}

// ChunkingConfig holds text chunking configuration. Sizes are in characters.
type ChunkingConfig struct {
	ChunkSize       int `yaml:"chunk_size"`
	OverlapSize     int `yaml:"overlap_size"`
	MinChunkSize    int `yaml:"min_chunk_size"`
	MinArticleChars int `yaml:"min_article_chars"`
}

type LanguageConfig struct {
	Default   string   `yaml:"default"`
	Languages []string `yaml:"languages,omitempty"` // ISO 639-1 codes; empty means all
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"` // "openai", "hash"
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batch_size"`
	Workers     int           `yaml:"workers"`
	StrictModel bool          `yaml:"strict_model"`
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	Kind         string `yaml:"kind"` // "exact", "hnsw"
	Dir          string `yaml:"dir"`
	HNSWM        int    `yaml:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK           int           `yaml:"top_k"`
	ScoreThreshold float64       `yaml:"score_threshold"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`
}

// GenerationConfig holds answer generation configuration.
type GenerationConfig struct {
	Provider        string        `yaml:"provider"` // "openai", "none"
	Model           string        `yaml:"model"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	BaseURL         string        `yaml:"base_url"`
	Temperature     float32       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// IngestConfig holds the globs used to discover article files.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "pretty", "json", "text"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "bolt",
			Dir:    ".newsrag",
		},
		Chunking: ChunkingConfig{
			ChunkSize:       512,
			OverlapSize:     50,
			MinChunkSize:    100,
			MinArticleChars: 50,
		},
		Language: LanguageConfig{
			Default: "en",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 32,
			Workers:   4,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Index: IndexConfig{
			Kind:         "exact",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Retrieve: RetrieveConfig{
			TopK:           3,
			ScoreThreshold: 0.2,
			EmbedTimeout:   15 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:        "openai",
			Model:           "gpt-3.5-turbo",
			APIKeyEnv:       "OPENAI_API_KEY",
			Temperature:     0.1,
			MaxTokens:       800,
			Timeout:         30 * time.Second,
			BreakerFailures: 3,
			BreakerCooldown: time.Minute,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.json", "**/*.yaml", "**/*.yml"},
			Excludes: []string{"**/.newsrag/**", "**/.git/**", "**/node_modules/**"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for newsrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "newsrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".newsrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	ch := c.Chunking
	if ch.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_size must be positive, got %d", ch.ChunkSize))
	}
	if ch.OverlapSize < 0 || ch.OverlapSize >= ch.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.overlap_size must be in [0, chunk_size), got %d", ch.OverlapSize))
	}
	if ch.MinChunkSize < 0 || ch.MinChunkSize > ch.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.min_chunk_size must be in [0, chunk_size], got %d", ch.MinChunkSize))
	}

	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}

	switch c.Storage.Driver {
	case "bolt", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver))
	}

	switch c.Index.Kind {
	case "exact", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("unsupported index kind: %q", c.Index.Kind))
	}

	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Retrieve.ScoreThreshold < 0 || c.Retrieve.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieve.score_threshold must be in [0, 1], got %v", c.Retrieve.ScoreThreshold))
	}

	return errors.Join(errs...)
}

// DataDir returns the storage directory, resolved against root when relative.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Storage.Dir) {
		return c.Storage.Dir
	}
	return filepath.Join(root, c.Storage.Dir)
}

// IndexDir returns the directory holding the index artifact pair.
func (c *Config) IndexDir(root string) string {
	if c.Index.Dir != "" {
		if filepath.IsAbs(c.Index.Dir) {
			return c.Index.Dir
		}
		return filepath.Join(root, c.Index.Dir)
	}
	return filepath.Join(c.DataDir(root), "index")
}

// StorePath returns the database file for the configured driver.
func (c *Config) StorePath(root string) string {
	switch c.Storage.Driver {
	case "sqlite":
		return filepath.Join(c.DataDir(root), "news.sqlite")
	default:
		return filepath.Join(c.DataDir(root), "news.db")
	}
}

// EnsureDataDir ensures the storage directory exists.
func (c *Config) EnsureDataDir(root string) error {
	return os.MkdirAll(c.DataDir(root), 0755)
}
