// Package retrieval embeds document chunks, indexes them per request, and
// returns the chunks nearest to a query.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emmi-yeo/vendor-intelligence/internal/engine"
	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/metrics"
)

const defaultBatchSize = 64

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine    engine.Engine
	model     string
	batchSize int
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model, batchSize: defaultBatchSize}
}

// Embed returns one vector per text, in input order. Texts are sent in
// batches, up to four batches at a time. Any batch failure fails the whole
// call with errs.ErrEmbedding. Returns nil (not error) for empty input.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the engine.

	for lo := 0; lo < len(texts); lo += e.batchSize {
		hi := min(lo+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.engine.Embed(gCtx, e.model, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("embedding texts %d-%d: %w", lo, hi-1, err)
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("embedding texts %d-%d: got %d vectors", lo, hi-1, len(vecs))
			}
			copy(results[lo:hi], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", errs.ErrEmbedding, err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()
	metrics.EmbeddingRequestDuration.Observe(time.Since(start).Seconds())
	return results, nil
}

// EmbedOne returns the vector for a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
