// Package vector provides append-only nearest-neighbour indexes over fixed-dimension vectors.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is one k-NN result: the insertion ordinal of the vector and its distance to the query.
type Hit struct {
	Ordinal  int
	Distance float64
}

// Index is an append-only similarity index. Ordinals are assigned densely from
// zero in insertion order and never reused. Implementations are safe for
// concurrent use.
type Index interface {
	// Add appends vectors and returns their ordinals. The whole batch is
	// rejected with ErrDimensionMismatch if any vector has the wrong length.
	Add(ctx context.Context, vectors [][]float32) ([]int, error)
	// Search returns min(k, Size()) hits by ascending distance, ties broken by
	// lower ordinal. An empty index yields an empty slice.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Vectors returns copies of all stored vectors in ordinal order.
	Vectors() [][]float32
	// Reset drops every vector; the next Add starts again at ordinal 0.
	Reset() error
	Size() int
	Dimensions() int
	Metric() Metric
	Type() string
	Close() error
}

func checkDimensions(vectors [][]float32, dimensions int) error {
	for i, v := range vectors {
		if len(v) != dimensions {
			return fmt.Errorf("%w: vector %d has %d values, index expects %d", ErrDimensionMismatch, i, len(v), dimensions)
		}
	}
	return nil
}
