// Package recommend owns the movie similarity index and turns user signals
// into ranked movie recommendations.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/embedding"
	"github.com/hyperjump/reelrank/internal/metrics"
	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/internal/snapshot"
	"github.com/hyperjump/reelrank/internal/vector"
)

// ErrPersistence wraps snapshot failures. The in-memory mutation that
// preceded it has been kept.
var ErrPersistence = errors.New("snapshot persistence failed")

// Mirror receives a best-effort copy of indexed vectors.
type Mirror interface {
	Upsert(ctx context.Context, points []vector.Point) error
	Delete(ctx context.Context, movieIDs []int64) error
}

// IngestResult describes a completed AddMovies call.
type IngestResult struct {
	MovieIDs  []int64
	Persisted bool
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Vectors     int       `json:"vectors"`
	Movies      int       `json:"movies"`
	Removed     int       `json:"removed"`
	Dimensions  int       `json:"dimensions"`
	IndexType   string    `json:"index_type"`
	Metric      string    `json:"metric"`
	LastUpdated time.Time `json:"last_updated"`
}

// Engine holds the similarity index, the ordinal to MovieId list and the
// cached movie metadata behind one RWMutex. Searches share the read lock;
// ingestion, removal and restore take the write lock, including the
// snapshot write. Embedding always runs outside the lock.
type Engine struct {
	embedder  embedding.Embedder
	index     vector.Index
	snapshots snapshot.Store
	enricher  *Enricher
	mirror    Mirror
	logger    *zap.Logger

	mu          sync.RWMutex
	movieIDs    []int64
	metadata    map[int64]*models.MovieRecord
	removed     map[int64]struct{}
	maxID       int64
	lastUpdated time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSnapshotStore persists the engine after every mutation.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(e *Engine) { e.snapshots = s }
}

// WithEnricher overlays search results with relational data.
func WithEnricher(en *Enricher) Option {
	return func(e *Engine) { e.enricher = en }
}

// WithMirror copies ingested vectors to m.
func WithMirror(m Mirror) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an empty engine. The embedder and index must agree on dimensions.
func NewEngine(embedder embedding.Embedder, index vector.Index, opts ...Option) (*Engine, error) {
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder produces %d values, index expects %d",
			vector.ErrDimensionMismatch, embedder.Dimensions(), index.Dimensions())
	}
	e := &Engine{
		embedder: embedder,
		index:    index,
		logger:   zap.NewNop(),
		movieIDs: []int64{},
		metadata: make(map[int64]*models.MovieRecord),
		removed:  make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AddMovies embeds and indexes records in order. Records without an id get
// ids above every id seen so far, including the explicit ids later in the
// same batch. A dimension mismatch rejects the whole batch. A snapshot
// failure returns the result together with an error wrapping ErrPersistence.
func (e *Engine) AddMovies(ctx context.Context, records []models.MovieRecord) (*IngestResult, error) {
	if len(records) == 0 {
		return &IngestResult{MovieIDs: []int64{}, Persisted: true}, nil
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = records[i].EmbeddingText()
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed movies: %w", err)
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d movies", len(vectors), len(records))
	}

	e.mu.Lock()
	ordinals, err := e.index.Add(ctx, vectors)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("index movies: %w", err)
	}

	for i := range records {
		if id, ok := records[i].Key(); ok && id > e.maxID {
			e.maxID = id
		}
	}
	ids := make([]int64, len(records))
	points := make([]vector.Point, len(records))
	for i := range records {
		rec := records[i].Clone()
		id, ok := rec.Key()
		if !ok {
			e.maxID++
			id = e.maxID
		}
		rec.SetKey(id)
		if ordinals[i] != len(e.movieIDs) {
			e.logger.Error("index ordinal out of step with movie list",
				zap.Int("ordinal", ordinals[i]), zap.Int("movies", len(e.movieIDs)))
		}
		e.movieIDs = append(e.movieIDs, id)
		e.metadata[id] = rec
		delete(e.removed, id)
		ids[i] = id
		points[i] = vector.Point{MovieID: id, Vector: vectors[i], Title: rec.Title, Description: rec.Synopsis()}
	}
	e.lastUpdated = time.Now().UTC()
	metrics.IngestedMovies.Add(float64(len(records)))
	metrics.IndexSize.Set(float64(e.index.Size()))
	saveErr := e.saveLocked(ctx)
	e.mu.Unlock()

	e.logger.Info("movies indexed", zap.Int("count", len(records)), zap.Int("index_size", e.index.Size()))
	if e.mirror != nil {
		if err := e.mirror.Upsert(ctx, points); err != nil {
			metrics.MirrorFailures.Inc()
			e.logger.Warn("vector mirror upsert failed", zap.Error(err))
		}
	}

	result := &IngestResult{MovieIDs: ids, Persisted: saveErr == nil}
	if saveErr != nil {
		return result, saveErr
	}
	return result, nil
}

// Search returns up to k hits closest to query, best first. Every index
// entry counts, so a movie ingested twice can appear twice.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]models.EnrichedMovie, error) {
	return e.search(ctx, query, k, nil, false)
}

// SearchExcluding returns up to k distinct movies closest to query with the
// given movie ids filtered out. Duplicates, filtered and removed movies are
// backfilled from further down the ranking.
func (e *Engine) SearchExcluding(ctx context.Context, query string, k int, exclude map[int64]struct{}) ([]models.EnrichedMovie, error) {
	return e.search(ctx, query, k, exclude, true)
}

func (e *Engine) search(ctx context.Context, query string, k int, exclude map[int64]struct{}, distinct bool) ([]models.EnrichedMovie, error) {
	if k <= 0 {
		return []models.EnrichedMovie{}, nil
	}
	qv, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.rank(ctx, qv, k, exclude, distinct)
	if err != nil {
		return nil, err
	}
	if e.enricher != nil {
		e.enricher.Enrich(ctx, results)
	}
	return results, nil
}

// rank resolves hits to movies under the read lock, widening the candidate
// window until k movies survive filtering or the index is exhausted.
func (e *Engine) rank(ctx context.Context, qv []float32, k int, exclude map[int64]struct{}, distinct bool) ([]models.EnrichedMovie, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	size := e.index.Size()
	window := k + len(e.removed) + len(exclude)
	if distinct {
		window += size - len(e.metadata)
	}
	for {
		if window > size {
			window = size
		}
		hits, err := e.index.Search(ctx, qv, window)
		if err != nil {
			return nil, fmt.Errorf("search index: %w", err)
		}
		results := make([]models.EnrichedMovie, 0, k)
		seen := make(map[int64]struct{}, len(hits))
		for _, h := range hits {
			if h.Ordinal < 0 || h.Ordinal >= len(e.movieIDs) {
				continue
			}
			id := e.movieIDs[h.Ordinal]
			if distinct {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
			}
			if _, ok := e.removed[id]; ok {
				continue
			}
			if _, ok := exclude[id]; ok {
				continue
			}
			results = append(results, e.fromMetadata(id, vector.Similarity(h.Distance)))
			if len(results) == k {
				return results, nil
			}
		}
		if window >= size {
			return results, nil
		}
		window *= 2
	}
}

// fromMetadata builds a result from cached metadata. A missing record yields
// an entry carrying only the id and score.
func (e *Engine) fromMetadata(id int64, score float64) models.EnrichedMovie {
	em := models.EnrichedMovie{
		MovieID:         id,
		Cast:            []models.CastMember{},
		Genres:          []string{},
		SimilarityScore: score,
	}
	rec, ok := e.metadata[id]
	if !ok {
		return em
	}
	em.Title = rec.Title
	em.PosterPath = rec.PosterPath
	em.ReleaseDate = rec.ReleaseDate
	em.Budget = rec.Budget
	em.Revenue = rec.Revenue
	em.Runtime = rec.Runtime
	em.Overview = rec.Synopsis()
	em.Rating = rec.Rating
	if len(rec.Genres) > 0 {
		em.Genres = append([]string(nil), rec.Genres...)
	}
	return em
}

// RemoveMovies tombstones ids so searches skip them. Their vectors stay in
// the index until the movie is re-added. It returns how many ids were newly
// removed.
func (e *Engine) RemoveMovies(ctx context.Context, ids []int64) (int, error) {
	e.mu.Lock()
	removed := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, known := e.metadata[id]; !known {
			continue
		}
		if _, already := e.removed[id]; already {
			continue
		}
		e.removed[id] = struct{}{}
		removed = append(removed, id)
	}
	var saveErr error
	if len(removed) > 0 {
		e.lastUpdated = time.Now().UTC()
		saveErr = e.saveLocked(ctx)
	}
	e.mu.Unlock()

	if len(removed) > 0 && e.mirror != nil {
		if err := e.mirror.Delete(ctx, removed); err != nil {
			metrics.MirrorFailures.Inc()
			e.logger.Warn("vector mirror delete failed", zap.Error(err))
		}
	}
	return len(removed), saveErr
}

// Restore replaces the engine state with the stored snapshot. A missing
// snapshot leaves the engine empty and is not an error.
func (e *Engine) Restore(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}
	state, err := e.snapshots.Load(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		e.logger.Info("no snapshot found, starting with an empty index")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if len(state.Vectors) > 0 && state.Dimensions != e.index.Dimensions() {
		return fmt.Errorf("%w: snapshot has %d dimensions, index expects %d",
			vector.ErrDimensionMismatch, state.Dimensions, e.index.Dimensions())
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.index.Reset(); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	if _, err := e.index.Add(ctx, state.Vectors); err != nil {
		return fmt.Errorf("restore index: %w", err)
	}
	e.movieIDs = append([]int64{}, state.MovieIDs...)
	e.metadata = make(map[int64]*models.MovieRecord, len(state.Metadata))
	e.maxID = 0
	for id, rec := range state.Metadata {
		if rec == nil {
			rec = &models.MovieRecord{}
		}
		e.metadata[id] = rec
		if id > e.maxID {
			e.maxID = id
		}
	}
	e.removed = make(map[int64]struct{}, len(state.Removed))
	for _, id := range state.Removed {
		e.removed[id] = struct{}{}
	}
	e.lastUpdated = state.LastUpdated
	metrics.IndexSize.Set(float64(e.index.Size()))
	e.logger.Info("snapshot restored",
		zap.Int("vectors", len(state.Vectors)),
		zap.Int("movies", len(e.metadata)),
		zap.Int("removed", len(e.removed)))
	return nil
}

// Stats reports the current engine size.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Vectors:     e.index.Size(),
		Movies:      len(e.metadata),
		Removed:     len(e.removed),
		Dimensions:  e.index.Dimensions(),
		IndexType:   e.index.Type(),
		Metric:      string(e.index.Metric()),
		LastUpdated: e.lastUpdated,
	}
}

// Movie returns the cached record for id.
func (e *Engine) Movie(id int64) (*models.MovieRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.metadata[id]
	if !ok {
		return nil, false
	}
	if _, gone := e.removed[id]; gone {
		return nil, false
	}
	return rec.Clone(), true
}

// saveLocked writes a snapshot. Callers hold e.mu for writing.
func (e *Engine) saveLocked(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}
	state := &snapshot.State{
		Dimensions:  e.index.Dimensions(),
		Vectors:     e.index.Vectors(),
		MovieIDs:    append([]int64(nil), e.movieIDs...),
		Metadata:    e.metadata,
		LastUpdated: e.lastUpdated,
	}
	for id := range e.removed {
		state.Removed = append(state.Removed, id)
	}
	sort.Slice(state.Removed, func(i, j int) bool { return state.Removed[i] < state.Removed[j] })
	if err := e.snapshots.Save(ctx, state); err != nil {
		metrics.SnapshotFailures.Inc()
		e.logger.Error("snapshot save failed; in-memory state kept", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
