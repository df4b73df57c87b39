package retrieval

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDimensionMismatch is returned when vectors of different lengths are
// mixed in one Index.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Hit is one search result.
type Hit struct {
	// ID is the position of the vector in the slice the index was built from.
	ID       int
	Distance float32
}

// Index is an exact nearest-neighbor index using squared L2 distance over
// every stored vector. It is built once and not modified.
type Index struct {
	dim  int
	vecs [][]float32
}

// NewIndex builds an Index over vecs. The dimension is that of the first
// vector; any other length is an error.
func NewIndex(vecs [][]float32) (*Index, error) {
	if len(vecs) == 0 {
		return nil, errors.New("index: no vectors")
	}
	dim := len(vecs[0])
	if dim == 0 {
		return nil, errors.New("index: zero-dimension vector")
	}
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return &Index{dim: dim, vecs: vecs}, nil
}

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of indexed vectors.
func (x *Index) Len() int { return len(x.vecs) }

// Search returns the k vectors nearest to q in ascending distance order.
// Equal distances keep insertion order.
func (x *Index) Search(q []float32, k int) ([]Hit, error) {
	if len(q) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(q), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, len(x.vecs))
	for i, v := range x.vecs {
		hits[i] = Hit{ID: i, Distance: l2(q, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func l2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
