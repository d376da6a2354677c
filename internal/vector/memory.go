package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an exact brute-force index. It is the default and keeps
// results reproducible: equal distances are ordered by ordinal.
type MemoryIndex struct {
	dimensions int
	metric     Metric
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory index with the given dimension and metric.
func NewMemoryIndex(dimensions int, metric Metric) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricL2
	}
	return &MemoryIndex{
		dimensions: dimensions,
		metric:     metric,
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Add validates the batch, then appends copies of the vectors.
func (m *MemoryIndex) Add(ctx context.Context, vectors [][]float32) ([]int, error) {
	if err := checkDimensions(vectors, m.dimensions); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ordinals := make([]int, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, m.dimensions)
		copy(vec, v)
		ordinals[i] = len(m.vectors)
		m.vectors = append(m.vectors, vec)
	}
	return ordinals, nil
}

// Search scans every vector and returns the k closest.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return []Hit{}, nil
	}
	hits := make([]Hit, len(m.vectors))
	for i, vec := range m.vectors {
		hits[i] = Hit{Ordinal: i, Distance: m.metric.Distance(query, vec)}
	}
	sortHits(hits)
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k:k], nil
}

// Vectors returns copies of the stored vectors in ordinal order.
func (m *MemoryIndex) Vectors() [][]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]float32, len(m.vectors))
	for i, v := range m.vectors {
		out[i] = append([]float32(nil), v...)
	}
	return out
}

// Reset drops every vector.
func (m *MemoryIndex) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = make([][]float32, 0)
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Dimensions returns the vector length the index accepts.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Metric returns the distance metric.
func (m *MemoryIndex) Metric() Metric {
	return m.metric
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// sortHits orders hits by ascending distance, then ascending ordinal.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}
