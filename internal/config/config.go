// Package config loads vendorintel settings: built-in defaults, overlaid by
// a flat JSON config file, overlaid by VENDORINTEL_* environment variables.
// Secrets are read from the environment only.
package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Engine    EngineConfig
	Store     StoreConfig
	Schema    SchemaConfig
	Retrieval RetrievalConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

type EngineConfig struct {
	Provider   string // "ollama", "openai" or "azure"
	BaseURL    string
	ChatModel  string
	EmbedModel string
	APIVersion string
	Timeout    time.Duration
	APIKey     string
}

// StoreConfig describes the structured vendor database.
type StoreConfig struct {
	Driver           string // "sqlserver", "postgres" or "sqlite"
	DSN              string
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	MaxRows          int
	RowLimit         int // row limit the generator is told to write
}

type SchemaConfig struct {
	Path           string
	ReloadInterval time.Duration // zero disables reloading
}

type RetrievalConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// StorageConfig describes the local audit database.
type StorageConfig struct {
	DataDir string
	Enabled bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		Log:    LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			Provider:   "ollama",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
			APIVersion: "2024-02-15-preview",
			Timeout:    30 * time.Second,
		},
		Store: StoreConfig{
			Driver:           "sqlserver",
			ConnectTimeout:   5 * time.Second,
			StatementTimeout: 15 * time.Second,
			MaxRows:          100,
			RowLimit:         50,
		},
		Schema: SchemaConfig{
			Path:           "data/schema_cache.json",
			ReloadInterval: time.Minute,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    500,
			ChunkOverlap: 100,
			TopK:         5,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Enabled: true,
		},
	}
}

// Load reads configuration from the config file at FilePath and the
// environment, then validates it.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Engine.Provider {
	case "ollama", "openai", "azure":
	default:
		errs = append(errs, fmt.Errorf("engine.provider must be ollama, openai or azure, got %q", c.Engine.Provider))
	}
	if c.Engine.Provider == "azure" && c.Engine.BaseURL == "" {
		errs = append(errs, errors.New("engine.base_url is required for the azure provider"))
	}
	switch c.Store.Driver {
	case "sqlserver", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlserver, postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Retrieval.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize))
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size), got %d", c.Retrieval.ChunkOverlap))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Store.MaxRows <= 0 {
		errs = append(errs, fmt.Errorf("store.max_rows must be positive, got %d", c.Store.MaxRows))
	}
	return errors.Join(errs...)
}

// RequireStore reports an error when no structured store DSN is configured.
func (c Config) RequireStore() error {
	if c.Store.DSN == "" {
		return errors.New("missing required config: structured store DSN. Set it via environment variable VENDORINTEL_STORE_DSN")
	}
	return nil
}
