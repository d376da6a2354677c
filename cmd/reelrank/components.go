package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/embedding"
	"github.com/hyperjump/reelrank/internal/extract"
	"github.com/hyperjump/reelrank/internal/indexer"
	"github.com/hyperjump/reelrank/internal/keyword"
	"github.com/hyperjump/reelrank/internal/recommend"
	"github.com/hyperjump/reelrank/internal/snapshot"
	"github.com/hyperjump/reelrank/internal/storage"
	"github.com/hyperjump/reelrank/internal/vector"
)

// mirrorSetupTimeout bounds the Qdrant collection check at startup.
const mirrorSetupTimeout = 5 * time.Second

// Components holds every long-lived dependency a command needs.
type Components struct {
	Storage   *storage.SQLiteStorage
	Keyword   keyword.MovieIndex // nil when opened without the keyword index
	Embedder  embedding.Embedder
	Index     vector.Index
	Snapshots snapshot.Store
	Mirror    *vector.QdrantMirror
	Engine    *recommend.Engine
	Service   *recommend.Service
	Indexer   *indexer.Indexer
	Loader    *extract.Loader
}

// Close releases resources in reverse order of creation.
func (c *Components) Close() {
	if c.Mirror != nil {
		_ = c.Mirror.Close()
	}
	if c.Snapshots != nil {
		_ = c.Snapshots.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// componentOptions selects the optional parts of initializeComponents.
type componentOptions struct {
	// keyword opens the Bleve index. Bleve holds an exclusive lock, so
	// read-only commands skip it while a server may be running.
	keyword bool
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (_ *Components, err error) {
	c := &Components{Loader: extract.NewLoader()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	if opts.keyword {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.BleveIndexPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		kw, kwErr := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if kwErr != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", kwErr)
		}
		c.Keyword = kw
	}

	// A missing model is fatal: set embedding.provider to "mock" to run without one.
	emb, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = emb

	dims := c.Embedder.Dimensions()
	if cfg.Vector.IndexType == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS support not compiled in (build with -tags=faiss)")
	}
	idx, err := vector.NewIndex(cfg.Vector, dims)
	if err != nil {
		if cfg.Vector.IndexType == string(vector.IndexTypeMemory) {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		logger.Warn("vector index unavailable, falling back to memory index",
			zap.String("index_type", cfg.Vector.IndexType), zap.Error(err))
		fallback := cfg.Vector
		fallback.IndexType = string(vector.IndexTypeMemory)
		if idx, err = vector.NewIndex(fallback, dims); err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	c.Index = idx

	snapshots, err := snapshot.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	c.Snapshots = snapshots

	engineOpts := []recommend.Option{
		recommend.WithSnapshotStore(c.Snapshots),
		recommend.WithEnricher(recommend.NewEnricher(c.Storage, cfg.Recommend, cfg.Media, logger)),
		recommend.WithLogger(logger),
	}
	if cfg.Qdrant.Enabled {
		if m := openMirror(ctx, cfg.Qdrant, dims, logger); m != nil {
			c.Mirror = m
			engineOpts = append(engineOpts, recommend.WithMirror(m))
		}
	}

	c.Engine, err = recommend.NewEngine(c.Embedder, c.Index, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	if err := c.Engine.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore snapshot from %s: %w", cfg.Storage.SnapshotPath(), err)
	}

	c.Service = recommend.NewService(c.Engine, c.Storage, cfg.Recommend, logger)
	c.Indexer = indexer.NewIndexer(c.Storage, c.Keyword, c.Engine, c.Loader, indexer.WithLogger(logger))
	return c, nil
}

// openMirror connects the Qdrant mirror. A mirror that cannot be reached is
// logged and left out; the local index stays authoritative.
func openMirror(ctx context.Context, cfg config.QdrantConfig, dims int, logger *zap.Logger) *vector.QdrantMirror {
	m, err := vector.NewQdrantMirror(cfg, logger)
	if err != nil {
		logger.Warn("qdrant mirror disabled", zap.Error(err))
		return nil
	}
	setupCtx, cancel := context.WithTimeout(ctx, mirrorSetupTimeout)
	defer cancel()
	if err := m.EnsureCollection(setupCtx, dims); err != nil {
		logger.Warn("qdrant collection unavailable, mirror disabled",
			zap.String("collection", cfg.Collection), zap.Error(err))
		_ = m.Close()
		return nil
	}
	return m
}
