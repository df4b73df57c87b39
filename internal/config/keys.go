package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "VENDORINTEL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "VENDORINTEL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "VENDORINTEL_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "engine.provider", typ: kString, env: "VENDORINTEL_ENGINE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Engine.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Provider },
	},
	{
		key: "engine.base_url", typ: kString, env: "VENDORINTEL_ENGINE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.BaseURL },
	},
	{
		key: "engine.chat_model", typ: kString, env: "VENDORINTEL_ENGINE_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.ChatModel },
	},
	{
		key: "engine.embed_model", typ: kString, env: "VENDORINTEL_ENGINE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.EmbedModel },
	},
	{
		key: "engine.api_version", typ: kString, env: "VENDORINTEL_ENGINE_API_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Engine.APIVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.APIVersion },
	},
	{
		key: "engine.timeout", typ: kDuration, env: "VENDORINTEL_ENGINE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Engine.Timeout },
	},
	{
		key: "engine.api_key", typ: kString, env: "VENDORINTEL_ENGINE_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Engine.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.APIKey },
	},
	{
		key: "store.driver", typ: kString, env: "VENDORINTEL_STORE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Store.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.Driver },
	},
	{
		key: "store.dsn", typ: kString, env: "VENDORINTEL_STORE_DSN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Store.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.DSN },
	},
	{
		key: "store.connect_timeout", typ: kDuration, env: "VENDORINTEL_STORE_CONNECT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Store.ConnectTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Store.ConnectTimeout },
	},
	{
		key: "store.statement_timeout", typ: kDuration, env: "VENDORINTEL_STORE_STATEMENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Store.StatementTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Store.StatementTimeout },
	},
	{
		key: "store.max_rows", typ: kInt, env: "VENDORINTEL_STORE_MAX_ROWS",
		apply:   func(cfg *Config, v any) { cfg.Store.MaxRows = v.(int) },
		extract: func(cfg Config) any { return cfg.Store.MaxRows },
	},
	{
		key: "store.row_limit", typ: kInt, env: "VENDORINTEL_STORE_ROW_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Store.RowLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Store.RowLimit },
	},
	{
		key: "schema.path", typ: kString, env: "VENDORINTEL_SCHEMA_PATH",
		apply:   func(cfg *Config, v any) { cfg.Schema.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Schema.Path },
	},
	{
		key: "schema.reload_interval", typ: kDuration, env: "VENDORINTEL_SCHEMA_RELOAD_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schema.ReloadInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Schema.ReloadInterval },
	},
	{
		key: "retrieval.chunk_size", typ: kInt, env: "VENDORINTEL_RETRIEVAL_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkSize },
	},
	{
		key: "retrieval.chunk_overlap", typ: kInt, env: "VENDORINTEL_RETRIEVAL_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkOverlap },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "VENDORINTEL_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VENDORINTEL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.enabled", typ: kBool, env: "VENDORINTEL_STORAGE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Storage.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.Enabled },
	},
	{
		key: "telemetry.enabled", typ: kBool, env: "VENDORINTEL_TELEMETRY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.Enabled },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString, env: "VENDORINTEL_TELEMETRY_OTLP_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
}

// parse converts raw into the key's type.
func (s keySpec) parse(raw string) (any, error) {
	var (
		v   any
		err error
	)
	switch s.typ {
	case kInt:
		v, err = strconv.Atoi(raw)
	case kBool:
		v, err = strconv.ParseBool(raw)
	case kDuration:
		v, err = time.ParseDuration(raw)
	default:
		v = raw
	}
	return v, err
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("config: invalid value in config file, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("config: invalid value in environment, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
