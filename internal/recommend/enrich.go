package recommend

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/metrics"
	"github.com/hyperjump/reelrank/internal/models"
)

// MovieStore is the relational collaborator that holds the authoritative,
// fully joined movie records. Ids it does not know are omitted from the map.
type MovieStore interface {
	GetMoviesByIDs(ctx context.Context, ids []int64) (map[int64]*models.Movie, error)
}

// Enricher overlays search hits with relational data. Lookups are bounded
// by a timeout and guarded by a circuit breaker; on any failure the hits
// keep their cached metadata.
type Enricher struct {
	store         MovieStore
	timeout       time.Duration
	posterBaseURL string
	breaker       *gobreaker.CircuitBreaker[map[int64]*models.Movie]
	logger        *zap.Logger
}

// NewEnricher returns an Enricher over store.
func NewEnricher(store MovieStore, rc config.RecommendConfig, mc config.MediaConfig, logger *zap.Logger) *Enricher {
	failures := rc.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	e := &Enricher{
		store:         store,
		timeout:       rc.EnrichmentTimeout,
		posterBaseURL: strings.TrimRight(mc.PosterBaseURL, "/"),
		logger:        logger,
	}
	e.breaker = gobreaker.NewCircuitBreaker[map[int64]*models.Movie](gobreaker.Settings{
		Name:    "movie-enrichment",
		Timeout: rc.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("enrichment breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	return e
}

// Enrich overlays movies in place. Order and similarity scores are never changed.
func (e *Enricher) Enrich(ctx context.Context, movies []models.EnrichedMovie) {
	if len(movies) == 0 {
		return
	}
	ids := make([]int64, len(movies))
	for i := range movies {
		ids[i] = movies[i].MovieID
	}

	found, err := e.breaker.Execute(func() (map[int64]*models.Movie, error) {
		cctx := ctx
		if e.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		return e.store.GetMoviesByIDs(cctx, ids)
	})
	if err != nil {
		reason := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			reason = "breaker_open"
		}
		metrics.EnrichmentFallbacks.WithLabelValues(reason).Inc()
		e.logger.Warn("enrichment failed, using cached metadata", zap.String("reason", reason), zap.Error(err))
		found = nil
	}

	for i := range movies {
		if m, ok := found[movies[i].MovieID]; ok {
			overlay(&movies[i], m)
		} else if err == nil {
			metrics.EnrichmentFallbacks.WithLabelValues("not_found").Inc()
		}
		movies[i].PosterPath = e.PosterURL(movies[i].PosterPath)
	}
}

// PosterURL joins a relative poster path to the configured base URL.
// Absolute URLs and empty paths are returned unchanged.
func (e *Enricher) PosterURL(path string) string {
	if path == "" || e.posterBaseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return e.posterBaseURL + "/" + strings.TrimLeft(path, "/")
}

// overlay copies non-empty relational fields onto em.
func overlay(em *models.EnrichedMovie, m *models.Movie) {
	if m.Title != "" {
		em.Title = m.Title
	}
	if m.PosterPath != "" {
		em.PosterPath = m.PosterPath
	}
	if m.ReleaseDate != "" {
		em.ReleaseDate = m.ReleaseDate
	}
	if m.Budget != 0 {
		em.Budget = m.Budget
	}
	if m.Revenue != 0 {
		em.Revenue = m.Revenue
	}
	if m.Runtime != 0 {
		em.Runtime = m.Runtime
	}
	if m.Overview != "" {
		em.Overview = m.Overview
	}
	if m.Rating != 0 {
		em.Rating = m.Rating
	}
	if len(m.Cast) > 0 {
		em.Cast = m.Cast
	}
	if names := m.GenreNames(); len(names) > 0 {
		em.Genres = names
	}
}
