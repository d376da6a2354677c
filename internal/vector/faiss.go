//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/hyperjump/reelrank/pkg/utils"
)

// FAISSIndex wraps a FAISS flat index. L2 uses IndexFlatL2, whose distances
// are already squared; cosine stores unit vectors in IndexFlatIP and reports
// 1 - inner product. FAISS labels are the insertion ordinals.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	metric     Metric
	mu         sync.RWMutex
}

// NewFAISSIndex creates a FAISS flat index with the given dimension and metric.
func NewFAISSIndex(dimensions int, metric Metric) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricL2
	}
	index, err := newFlatIndex(dimensions, metric)
	if err != nil {
		return nil, err
	}
	return &FAISSIndex{index: index, dimensions: dimensions, metric: metric}, nil
}

func newFlatIndex(dimensions int, metric Metric) (*C.FaissIndex, error) {
	var index *C.FaissIndex
	var ret C.int
	if metric == MetricCosine {
		ret = C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions))
	} else {
		ret = C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions))
	}
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return index, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add validates the batch and appends it in one FAISS call.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32) ([]int, error) {
	if err := checkDimensions(vectors, f.dimensions); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return []int{}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(vectors)
	flat := make([]float32, n*f.dimensions)
	for i, vec := range vectors {
		row := flat[i*f.dimensions : (i+1)*f.dimensions]
		copy(row, vec)
		if f.metric == MetricCosine {
			utils.NormalizeL2(row)
		}
	}

	start := int(C.faiss_Index_ntotal(f.index))
	ret := C.faiss_Index_add(f.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return nil, fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}

	ordinals := make([]int, n)
	for i := range ordinals {
		ordinals[i] = start + i
	}
	return ordinals, nil
}

// Search runs an exact FAISS search and re-sorts so ties follow ordinal order.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", ErrDimensionMismatch, len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return []Hit{}, nil
	}
	if k > ntotal {
		k = ntotal
	}

	q := append([]float32(nil), query...)
	if f.metric == MetricCosine {
		utils.NormalizeL2(q)
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&q[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		d := float64(distances[i])
		if f.metric == MetricCosine {
			d = 1 - d
			if d < 0 {
				d = 0
			}
		}
		hits = append(hits, Hit{Ordinal: int(labels[i]), Distance: d})
	}
	sortHits(hits)
	return hits, nil
}

// Vectors reconstructs every stored vector in ordinal order.
func (f *FAISSIndex) Vectors() [][]float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := int(C.faiss_Index_ntotal(f.index))
	out := make([][]float32, n)
	if n == 0 {
		return out
	}
	flat := make([]float32, n*f.dimensions)
	if C.faiss_Index_reconstruct_n(f.index, 0, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0]))) != 0 {
		return [][]float32{}
	}
	for i := range out {
		out[i] = flat[i*f.dimensions : (i+1)*f.dimensions : (i+1)*f.dimensions]
	}
	return out
}

// Reset removes every vector from the FAISS index.
func (f *FAISSIndex) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if C.faiss_Index_reset(f.index) != 0 {
		return fmt.Errorf("failed to reset FAISS index: %s", faissLastError())
	}
	return nil
}

// Size returns the number of stored vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimensions returns the vector length the index accepts.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Metric returns the distance metric.
func (f *FAISSIndex) Metric() Metric {
	return f.metric
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
