// Package scoring ranks structured rows against retrieved requirement text
// by cosine similarity of their embeddings.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/emmi-yeo/vendor-intelligence/internal/errs"
	"github.com/emmi-yeo/vendor-intelligence/internal/telemetry"
)

const epsilon = 1e-8

// Embedder maps texts to vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Ranking is the merged output of a scoring run.
type Ranking struct {
	Records         []Record `json:"ranked_result"`
	RequirementText string   `json:"requirement_text_used"`
}

// Scorer ranks rows against requirement text.
type Scorer struct {
	embedder Embedder
}

func NewScorer(e Embedder) *Scorer {
	return &Scorer{embedder: e}
}

// Score embeds the joined chunks once and every row once, then returns the
// rows sorted by descending cosine similarity. Ties keep their original
// order. It returns nil when there are no rows or no chunks.
func (s *Scorer) Score(ctx context.Context, columns []string, rows [][]any, chunks []string) (_ *Ranking, err error) {
	if len(rows) == 0 || len(chunks) == 0 {
		return nil, nil
	}
	ctx, span := telemetry.Start(ctx, "scoring.score")
	defer func() { telemetry.End(span, err) }()

	requirement := strings.Join(chunks, " ")
	reqVecs, err := s.embedder.Embed(ctx, []string{requirement})
	if err != nil {
		return nil, fmt.Errorf("embedding requirement text: %w", wrapEmbedding(err))
	}
	if len(reqVecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for requirement text", errs.ErrEmbedding, len(reqVecs))
	}

	blobs := make([]string, len(rows))
	for i, row := range rows {
		blobs[i] = RowText(columns, row)
	}
	rowVecs, err := s.embedder.Embed(ctx, blobs)
	if err != nil {
		return nil, fmt.Errorf("embedding rows: %w", wrapEmbedding(err))
	}
	if len(rowVecs) != len(rows) {
		return nil, fmt.Errorf("%w: got %d vectors for %d rows", errs.ErrEmbedding, len(rowVecs), len(rows))
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{Columns: columns, Values: row, MatchScore: Cosine(rowVecs[i], reqVecs[0])}
	}
	Rank(records)
	return &Ranking{Records: records, RequirementText: requirement}, nil
}

// Rank sorts records by descending MatchScore, keeping the relative order of
// equal scores.
func Rank(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].MatchScore > records[j].MatchScore
	})
}

// Cosine returns dot(a, b) / (|a||b| + 1e-8). Extra trailing dimensions of
// the longer vector are ignored in the dot product.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		na += x * x
		if i < len(b) {
			dot += x * float64(b[i])
		}
	}
	for _, y := range b {
		nb += float64(y) * float64(y)
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + epsilon)
}

func wrapEmbedding(err error) error {
	if errors.Is(err, errs.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", errs.ErrEmbedding, err)
}
