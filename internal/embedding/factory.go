package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/config"
)

// New builds the embedder selected by cfg.Provider and wraps it in an LRU
// cache when cfg.CacheSize > 0. Failure to load a model returns an error
// wrapping ErrUnavailable.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "", "onnx":
		onnx, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.LibraryPath,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		e = onnx
	case "mock":
		logger.Warn("using mock embedder; results are not semantically meaningful")
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrUnavailable, cfg.Provider)
	}

	logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", e.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}
