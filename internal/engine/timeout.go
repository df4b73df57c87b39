package engine

import (
	"context"
	"time"
)

type timeoutEngine struct {
	Engine
	d time.Duration
}

// WithTimeout bounds every Chat and Embed call on e by d. A non-positive d
// returns e unchanged.
func WithTimeout(e Engine, d time.Duration) Engine {
	if d <= 0 {
		return e
	}
	return &timeoutEngine{Engine: e, d: d}
}

func (t *timeoutEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Engine.Chat(ctx, model, messages, opts)
}

func (t *timeoutEngine) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Engine.Embed(ctx, model, texts)
}
