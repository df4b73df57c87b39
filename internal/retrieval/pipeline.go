package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/emmi-yeo/vendor-intelligence/internal/docs"
	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/telemetry"
)

const defaultTopK = 5

// TextEmbedder is the embedding capability used by the pipeline.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is the outcome of one retrieval run.
type Result struct {
	TotalChunks int          `json:"total_chunks"`
	Retrieved   []docs.Chunk `json:"retrieved_chunks"`
	// Distances parallels Retrieved when a query ranked the chunks.
	Distances []float32 `json:"distances,omitempty"`
}

// Texts returns the text of every retrieved chunk.
func (r Result) Texts() []string {
	return docs.Texts(r.Retrieved)
}

// Pipeline chunks a document, embeds and indexes the chunks, and retrieves
// the ones nearest to a query.
type Pipeline struct {
	chunker  *docs.Chunker
	embedder TextEmbedder
	topK     int
}

// NewPipeline creates a Pipeline returning up to topK chunks.
func NewPipeline(chunker *docs.Chunker, embedder TextEmbedder, topK int) *Pipeline {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Pipeline{chunker: chunker, embedder: embedder, topK: topK}
}

// Run retrieves from text. Chunks are always embedded and indexed; with an
// empty query the first topK chunks are then returned in document order
// without ranking. An embedding failure fails the whole run.
func (p *Pipeline) Run(ctx context.Context, text, query string) (res Result, err error) {
	ctx, span := telemetry.Start(ctx, "retrieval.run")
	defer func() { telemetry.End(span, err) }()

	chunks := p.chunker.Split(text)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	res.TotalChunks = len(chunks)
	if len(chunks) == 0 {
		return res, nil
	}

	texts := docs.Texts(chunks)
	if query != "" {
		texts = append(texts, query)
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		if !errors.Is(err, errs.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", errs.ErrEmbedding, err)
		}
		slog.Warn("retrieval: embedding failed", "error", err)
		return Result{}, err
	}
	if len(vecs) != len(texts) {
		return Result{}, fmt.Errorf("%w: got %d vectors for %d texts", errs.ErrEmbedding, len(vecs), len(texts))
	}

	idx, err := NewIndex(vecs[:len(chunks)])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", errs.ErrEmbedding, err)
	}

	if query == "" {
		res.Retrieved = chunks[:min(p.topK, idx.Len())]
		return res, nil
	}

	hits, err := idx.Search(vecs[len(chunks)], p.topK)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", errs.ErrEmbedding, err)
	}

	for _, h := range hits {
		res.Retrieved = append(res.Retrieved, chunks[h.ID])
		res.Distances = append(res.Distances, h.Distance)
	}
	return res, nil
}
