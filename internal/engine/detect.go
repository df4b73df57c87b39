package engine

import (
	"fmt"
	"time"
)

// DefaultOllamaURL is used when no base URL is configured for Ollama.
const DefaultOllamaURL = "http://localhost:11434"

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider   string // "ollama", "openai" or "azure"
	BaseURL    string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// Detect returns the Engine for the configured provider, wrapped with the
// per-call timeout. An empty provider selects Ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	var e Engine
	switch cfg.Provider {
	case "", "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = DefaultOllamaURL
		}
		e = NewOllamaEngine(base)
	case "openai":
		e = NewOpenAIEngine(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	case "azure":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure provider requires engine.base_url")
		}
		e = NewOpenAIEngine(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		})
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Provider)
	}
	return WithTimeout(e, cfg.Timeout), nil
}
