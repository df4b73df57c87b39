package engine

import "context"

// Engine is a chat-and-embedding backend: a local Ollama server or an
// OpenAI-compatible API such as Azure OpenAI.
type Engine interface {
	// Chat sends messages to model and returns the assistant reply.
	Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error)

	// Embed returns one embedding per text, in input order.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	ModelManager
}

// ModelManager reports backend reachability and installs models.
type ModelManager interface {
	IsRunning(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	HasModel(ctx context.Context, name string) bool
	// PullModel downloads a model. onProgress may be nil.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
