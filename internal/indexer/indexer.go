// Package indexer feeds movie batches into the relational store, the keyword
// index and the recommendation engine.
package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/extract"
	"github.com/hyperjump/reelrank/internal/keyword"
	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/internal/recommend"
)

// CatalogStore is the relational side of ingestion.
type CatalogStore interface {
	UpsertMovies(ctx context.Context, movies []*models.Movie) error
}

// FileResult describes one ingested file.
type FileResult struct {
	Path      string `json:"path"`
	Movies    int    `json:"movies"`
	Persisted bool   `json:"persisted"`
	Skipped   bool   `json:"skipped"`
}

// Indexer ingests movies into the catalog store, the keyword index and the
// recommendation engine. Ingestion is serialized.
type Indexer struct {
	store   CatalogStore
	keyword keyword.MovieIndex
	engine  *recommend.Engine
	loader  *extract.Loader
	logger  *zap.Logger // optional; when set, logs debug events

	mu     sync.Mutex
	hashes map[string][sha256.Size]byte
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. store and kw may be nil, in which case
// only the engine is fed.
func NewIndexer(store CatalogStore, kw keyword.MovieIndex, engine *recommend.Engine, loader *extract.Loader, opts ...IndexerOption) *Indexer {
	if loader == nil {
		loader = extract.NewLoader()
	}
	idx := &Indexer{
		store:   store,
		keyword: kw,
		engine:  engine,
		loader:  loader,
		logger:  zap.NewNop(),
		hashes:  make(map[string][sha256.Size]byte),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IngestRecords embeds and indexes records, then upserts them into the
// catalog store and keyword index under the ids the engine assigned. A
// snapshot failure is returned wrapping recommend.ErrPersistence together
// with a non-nil result; the catalog is still updated.
func (idx *Indexer) IngestRecords(ctx context.Context, records []models.MovieRecord) (*recommend.IngestResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.ingestLocked(ctx, records)
}

func (idx *Indexer) ingestLocked(ctx context.Context, records []models.MovieRecord) (*recommend.IngestResult, error) {
	cleaned := make([]models.MovieRecord, len(records))
	for i := range records {
		cleaned[i] = normalizeRecord(records[i])
	}

	res, err := idx.engine.AddMovies(ctx, cleaned)
	if res == nil {
		return nil, err
	}
	persistErr := err

	movies := make([]*models.Movie, len(cleaned))
	for i := range cleaned {
		movies[i] = models.MovieFromRecord(res.MovieIDs[i], &cleaned[i])
	}
	if idx.store != nil {
		if err := idx.store.UpsertMovies(ctx, movies); err != nil {
			return res, fmt.Errorf("failed to store movies: %w", err)
		}
	}
	if idx.keyword != nil {
		if err := idx.keyword.Index(ctx, movies); err != nil {
			return res, fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	idx.logger.Debug("indexer batch ingested", zap.Int("movies", len(movies)), zap.Bool("persisted", res.Persisted))
	return res, persistErr
}

// IngestFile loads a catalog file and ingests its movies. A file whose
// content is unchanged since its last successful ingest is skipped.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*FileResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !extract.Supported(absPath) {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	sum := sha256.Sum256(content)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	result := &FileResult{Path: absPath}
	if prev, ok := idx.hashes[absPath]; ok && prev == sum {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		result.Skipped = true
		result.Persisted = true
		return result, nil
	}

	records, err := idx.loader.LoadBytes(content, strings.ToLower(filepath.Ext(absPath)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(absPath), err)
	}
	res, err := idx.ingestLocked(ctx, records)
	if res == nil {
		return nil, err
	}
	result.Movies = len(res.MovieIDs)
	result.Persisted = res.Persisted
	if err != nil && !errors.Is(err, recommend.ErrPersistence) {
		return result, err
	}
	idx.hashes[absPath] = sum
	idx.logger.Info("catalog file ingested", zap.String("path", absPath), zap.Int("movies", result.Movies))
	return result, err
}

// IngestDirectory walks dir recursively and ingests each supported file.
// It returns the files ingested and the first error encountered, if any.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string) ([]*FileResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var results []*FileResult
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.Supported(path) {
			return nil
		}
		res, err := idx.IngestFile(ctx, path)
		if err != nil && !errors.Is(err, recommend.ErrPersistence) {
			return err
		}
		results = append(results, res)
		return nil
	})
	return results, err
}

// Forget drops the remembered content hash for path so the next IngestFile
// reloads it.
func (idx *Indexer) Forget(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	idx.mu.Lock()
	delete(idx.hashes, absPath)
	idx.mu.Unlock()
}

// RemoveMovies tombstones ids in the engine and drops them from the keyword index.
func (idx *Indexer) RemoveMovies(ctx context.Context, ids []int64) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n, err := idx.engine.RemoveMovies(ctx, ids)
	if idx.keyword != nil {
		for _, id := range ids {
			if kerr := idx.keyword.Delete(ctx, id); kerr != nil {
				idx.logger.Warn("keyword delete failed", zap.Int64("movie_id", id), zap.Error(kerr))
			}
		}
	}
	return n, err
}
