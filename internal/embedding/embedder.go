// Package embedding turns text into fixed-length vectors via ONNX or a deterministic mock.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the embedding model could not be loaded.
// It is a startup-time condition; callers should treat it as fatal.
var ErrUnavailable = errors.New("embedding model unavailable")

// Embedder produces vector embeddings for text. Implementations are
// deterministic for a fixed model and must return a valid vector for the
// empty string.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
