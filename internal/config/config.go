// Package config provides configuration loading and structs for the nearby server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/nearby/internal/models"
	"github.com/hyperjump/nearby/internal/ranking"
	"github.com/hyperjump/nearby/internal/relevance"
	"github.com/hyperjump/nearby/internal/tags"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// Environment variables that override the config file.
const (
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvDSN           = "NEARBY_DSN"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Vectorize VectorizeConfig `yaml:"vectorize"`
	Watch     WatchConfig     `yaml:"watch"`
	Tables    TablesConfig    `yaml:"tables"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects the store driver and where it keeps its data.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	// GeoIndexPath is the Bleve geo index of the sqlite driver; empty keeps the
	// driver on its bounding-box query.
	GeoIndexPath string `yaml:"geo_index_path"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	// CacheSize bounds the query embedding cache.
	CacheSize int `yaml:"cache_size"`
}

// SearchConfig holds query defaults and ranking tunables.
type SearchConfig struct {
	DefaultMaxResults   int     `yaml:"default_max_results"`
	MaxResultsLimit     int     `yaml:"max_results_limit"`
	DefaultRadiusKm     float64 `yaml:"default_radius_km"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// MinSimilarity defaults to 0.8 * SimilarityThreshold.
	MinSimilarity       float64  `yaml:"min_similarity"`
	LocationWeight      *float64 `yaml:"location_weight"`
	CandidateMultiplier int      `yaml:"candidate_multiplier"`
	BypassSimilarity    float64  `yaml:"bypass_similarity"`
	FailOpen            *bool    `yaml:"fail_open"`

	Ranking ranking.RankingConfig `yaml:"ranking"`
}

// Defaults returns the query defaults derived from the search section.
func (s *SearchConfig) Defaults() models.QueryDefaults {
	d := models.QueryDefaults{
		MaxResults:      s.DefaultMaxResults,
		MaxResultsLimit: s.MaxResultsLimit,
		RadiusKm:        s.DefaultRadiusKm,
		MinSimilarity:   s.MinSimilarity,
	}
	if s.LocationWeight != nil {
		d.LocationWeight = *s.LocationWeight
	}
	return d
}

// FailOpenOrDefault reports whether the keyword filter keeps candidates when
// its check fails; defaults to true when unset.
func (s *SearchConfig) FailOpenOrDefault() bool {
	if s.FailOpen != nil {
		return *s.FailOpen
	}
	return true
}

// VectorizeConfig holds profile embedding refresh settings.
type VectorizeConfig struct {
	StaleAfter  time.Duration `yaml:"stale_after"`
	Concurrency int           `yaml:"concurrency"`
	CacheSize   int           `yaml:"cache_size"`
	// OnStart re-vectorizes every stored profile when the server starts.
	OnStart bool `yaml:"on_start"`
}

// WatchConfig holds profile directory watch settings.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
	// Eager vectorizes imported profiles right away instead of on first search.
	Eager bool `yaml:"eager"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// TablesConfig points at YAML files replacing the built-in static tables.
type TablesConfig struct {
	CategoriesPath string `yaml:"categories_path"`
	ExpansionsPath string `yaml:"expansions_path"`
}

// TagTable loads the category table, or returns the built-in one when no path is set.
func (t *TablesConfig) TagTable() (*tags.Table, error) {
	if t.CategoriesPath == "" {
		return tags.DefaultTable(), nil
	}
	var rules []tags.Rule
	if err := readYAML(t.CategoriesPath, &rules); err != nil {
		return nil, err
	}
	table, err := tags.NewTable(rules)
	if err != nil {
		return nil, fmt.Errorf("categories %s: %w", t.CategoriesPath, err)
	}
	return table, nil
}

// Expansions loads the query expansion table, or returns the built-in one when no path is set.
func (t *TablesConfig) Expansions() (*relevance.Expansions, error) {
	if t.ExpansionsPath == "" {
		return relevance.DefaultExpansions(), nil
	}
	var entries []relevance.Expansion
	if err := readYAML(t.ExpansionsPath, &entries); err != nil {
		return nil, err
	}
	x, err := relevance.NewExpansions(entries)
	if err != nil {
		return nil, fmt.Errorf("expansions %s: %w", t.ExpansionsPath, err)
	}
	return x, nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Default returns a configuration with every default applied and environment overrides read.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, applies
// defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.GeoIndexPath = expandPath(cfg.Storage.GeoIndexPath, configDir)
	cfg.Tables.CategoriesPath = expandPath(cfg.Tables.CategoriesPath, configDir)
	cfg.Tables.ExpansionsPath = expandPath(cfg.Tables.ExpansionsPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides credentials and the PostgreSQL DSN from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Storage.DSN = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn (or %s) is required for the postgres driver", EnvDSN)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderMock, ProviderNone:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	if w := c.Search.LocationWeight; w != nil && (*w < 0 || *w > 1) {
		return fmt.Errorf("search.location_weight must be within [0, 1], got %v", *w)
	}
	if t := c.Search.SimilarityThreshold; t < -1 || t > 1 {
		return fmt.Errorf("search.similarity_threshold must be within [-1, 1], got %v", t)
	}
	if c.Search.MaxResultsLimit < c.Search.DefaultMaxResults {
		return fmt.Errorf("search.max_results_limit (%d) is below default_max_results (%d)",
			c.Search.MaxResultsLimit, c.Search.DefaultMaxResults)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
// The API key is never written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
