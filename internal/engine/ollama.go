package engine

import (
	"context"

	"github.com/emmi-yeo/vendor-intelligence/internal/ollama"
)

// OllamaEngine serves chat and embeddings from an Ollama server, and can
// pull missing models.
type OllamaEngine struct {
	client *ollama.Client
}

func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message(m)
	}
	return e.client.Chat(ctx, model, msgs, ollama.ChatOptions{JSON: opts.JSON, Temperature: opts.Temperature})
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, model, texts)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool { return e.client.IsRunning(ctx) }

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if onProgress == nil {
		return e.client.PullModel(ctx, name, nil)
	}
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
	})
}
