package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./nearby.db"
search:
  location_weight: 0
  similarity_threshold: 0.5
vectorize:
  stale_after: 30m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if want := filepath.Join(filepath.Dir(path), "nearby.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if cfg.Search.LocationWeight == nil || *cfg.Search.LocationWeight != 0 {
		t.Errorf("an explicit zero location weight must be kept, got %v", cfg.Search.LocationWeight)
	}
	if got := cfg.Search.MinSimilarity; got < 0.3999 || got > 0.4001 {
		t.Errorf("min_similarity = %v, want 0.8 * threshold", got)
	}
	if cfg.Vectorize.StaleAfter != 30*time.Minute {
		t.Errorf("stale_after = %v", cfg.Vectorize.StaleAfter)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\nstorage:\n  driver: memory\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Storage.DatabasePath != "" {
		t.Errorf("memory driver should not get a database path, got %s", cfg.Storage.DatabasePath)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/nearby.db"
  geo_index_path: "./data/geo"
tables:
  categories_path: "./tables/categories.yaml"
watch:
  directories: ["./profiles"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if want := filepath.Join(dir, "data", "db", "nearby.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "geo"); cfg.Storage.GeoIndexPath != want {
		t.Errorf("geo_index_path = %s, want %s", cfg.Storage.GeoIndexPath, want)
	}
	if want := filepath.Join(dir, "tables", "categories.yaml"); cfg.Tables.CategoriesPath != want {
		t.Errorf("categories_path = %s, want %s", cfg.Tables.CategoriesPath, want)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "profiles") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
	if cfg.Tables.ExpansionsPath != "" {
		t.Errorf("unset paths must stay empty, got %s", cfg.Tables.ExpansionsPath)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvOpenAIBaseURL, "http://localhost:11434/v1")
	t.Setenv(EnvDSN, "postgres://nearby@localhost/nearby?sslmode=disable")

	cfg, err := Load(writeConfig(t, "storage:\n  driver: postgres\nembedding:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("api key = %q, want env value", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("base url = %q", cfg.Embedding.BaseURL)
	}
	if cfg.Storage.DSN == "" {
		t.Error("dsn should come from the environment")
	}
}

func TestLoad_invalid(t *testing.T) {
	t.Setenv(EnvDSN, "")
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", "storage:\n  driver: mongo\n"},
		{"postgres without dsn", "storage:\n  driver: postgres\n"},
		{"unknown provider", "embedding:\n  provider: cohere\n"},
		{"weight out of range", "search:\n  location_weight: 1.5\n"},
		{"limit below default", "search:\n  default_max_results: 20\n  max_results_limit: 5\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.DatabasePath == "" {
		t.Errorf("default storage: got %+v", cfg.Storage)
	}
	if cfg.Embedding.Provider != ProviderOpenAI || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("default embedding: got %+v", cfg.Embedding)
	}
	d := cfg.Search.Defaults()
	if d.MaxResults != 10 || d.MaxResultsLimit != 50 || d.RadiusKm != 50 || d.LocationWeight != 0.3 {
		t.Errorf("query defaults: got %+v", d)
	}
	if d.MinSimilarity < 0.5599 || d.MinSimilarity > 0.5601 {
		t.Errorf("min similarity: got %v, want 0.56", d.MinSimilarity)
	}
	if cfg.Search.CandidateMultiplier != 3 {
		t.Errorf("candidate multiplier: got %d", cfg.Search.CandidateMultiplier)
	}
	if cfg.Search.Ranking.DistanceScaleKm != 10 {
		t.Errorf("ranking defaults not applied: %+v", cfg.Search.Ranking)
	}
	if !cfg.Search.FailOpenOrDefault() {
		t.Error("keyword filter should fail open by default")
	}
	if cfg.Vectorize.StaleAfter != time.Hour || cfg.Vectorize.Concurrency != 4 {
		t.Errorf("vectorize defaults: got %+v", cfg.Vectorize)
	}
	if len(cfg.Watch.Extensions) != 3 || cfg.Watch.Extensions[0] != ".yaml" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/profiles"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	f := false
	if !(&WatchConfig{}).RecursiveOrDefault() {
		t.Error("nil should mean recursive")
	}
	if (&WatchConfig{Recursive: &f}).RecursiveOrDefault() {
		t.Error("false should be kept")
	}
}

func TestTables(t *testing.T) {
	dir := t.TempDir()
	cats := filepath.Join(dir, "categories.yaml")
	exps := filepath.Join(dir, "expansions.yaml")
	if err := os.WriteFile(cats, []byte("- category: Gardening\n  keywords: [garden, plant]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(exps, []byte("- key: garden\n  terms: [garden, plant, flower]\n"), 0600); err != nil {
		t.Fatal(err)
	}

	tables := &TablesConfig{CategoriesPath: cats, ExpansionsPath: exps}
	table, err := tables.TagTable()
	if err != nil {
		t.Fatal(err)
	}
	if got := table.Categorize("house plants"); got != "Gardening" {
		t.Errorf("Categorize = %q, want Gardening", got)
	}
	x, err := tables.Expansions()
	if err != nil {
		t.Fatal(err)
	}
	if terms, ok := x.Lookup("garden"); !ok || len(terms) != 3 {
		t.Errorf("Lookup(garden) = %v, %v", terms, ok)
	}

	builtin := &TablesConfig{}
	if _, err := builtin.TagTable(); err != nil {
		t.Error(err)
	}
	if _, err := (&TablesConfig{CategoriesPath: filepath.Join(dir, "nope.yaml")}).TagTable(); err == nil {
		t.Error("expected an error for a missing table")
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Server.Port = 9090
	cfg.Embedding.APIKey = "secret"
	cfg.Storage.Driver = DriverMemory
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "secret" {
		t.Error("Save must not modify its argument")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("api key must not be written")
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Vectorize.StaleAfter != time.Hour {
		t.Errorf("loaded: got port %d stale_after %v", loaded.Server.Port, loaded.Vectorize.StaleAfter)
	}
}
