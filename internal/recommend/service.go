package recommend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/metrics"
	"github.com/hyperjump/reelrank/internal/models"
)

// Strategy names, also used as metric labels.
const (
	StrategyQuery     = "query"
	StrategyProfile   = "profile"
	StrategyHistory   = "history"
	StrategyFavorites = "favorites"
)

// UseDefaultK asks for the configured default result count.
const UseDefaultK = -1

// ActivityStore is the user activity collaborator the history and
// favorites strategies read from.
type ActivityStore interface {
	// ListSearchHistory returns up to limit entries, most recent first.
	ListSearchHistory(ctx context.Context, userID int64, limit int) ([]models.SearchHistoryEntry, error)
	// ListFavoriteMovies returns the user's favorite movies, most recently liked first.
	ListFavoriteMovies(ctx context.Context, userID int64) ([]*models.Movie, error)
}

// Result is a ranked recommendation and the query text that produced it.
type Result struct {
	Strategy string                 `json:"strategy"`
	Query    string                 `json:"query"`
	Movies   []models.EnrichedMovie `json:"movies"`
}

// Service builds strategy queries from user signals and runs them through
// the engine. Every strategy ends in exactly one engine search.
type Service struct {
	engine       *Engine
	activity     ActivityStore
	defaultK     int
	maxK         int
	historyDepth int
	logger       *zap.Logger
}

// NewService returns a Service over engine and activity.
func NewService(engine *Engine, activity ActivityStore, cfg config.RecommendConfig, logger *zap.Logger) *Service {
	s := &Service{
		engine:       engine,
		activity:     activity,
		defaultK:     cfg.DefaultK,
		maxK:         cfg.MaxK,
		historyDepth: cfg.HistoryDepth,
		logger:       logger,
	}
	if s.defaultK <= 0 {
		s.defaultK = 10
	}
	if s.maxK < s.defaultK {
		s.maxK = s.defaultK
	}
	if s.historyDepth <= 0 {
		s.historyDepth = DefaultHistoryDepth
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// ClampK caps k at the configured maximum. A negative k, such as
// UseDefaultK, means the configured default; zero stays zero.
func (s *Service) ClampK(k int) int {
	if k < 0 {
		return s.defaultK
	}
	if k > s.maxK {
		return s.maxK
	}
	return k
}

// ForQuery searches with free text.
func (s *Service) ForQuery(ctx context.Context, query string, k int) (*Result, error) {
	return s.run(ctx, StrategyQuery, query, k, nil)
}

// ForProfile recommends from the user's location, genres and languages.
func (s *Service) ForProfile(ctx context.Context, user *models.User, k int) (*Result, error) {
	return s.run(ctx, StrategyProfile, ProfileQuery(user), k, nil)
}

// ForHistory recommends from the user's most recent searches.
func (s *Service) ForHistory(ctx context.Context, userID int64, k int) (*Result, error) {
	entries, err := s.activity.ListSearchHistory(ctx, userID, s.historyDepth)
	if err != nil {
		return nil, fmt.Errorf("list search history: %w", err)
	}
	return s.run(ctx, StrategyHistory, HistoryQuery(entries, s.historyDepth), k, nil)
}

// ForFavorites recommends movies similar to the user's favorites. Movies
// already favorited are left out and replaced from further down the ranking.
func (s *Service) ForFavorites(ctx context.Context, userID int64, k int) (*Result, error) {
	movies, err := s.activity.ListFavoriteMovies(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorite movies: %w", err)
	}
	exclude := make(map[int64]struct{}, len(movies))
	for _, m := range movies {
		if m != nil {
			exclude[m.MovieID] = struct{}{}
		}
	}
	return s.run(ctx, StrategyFavorites, LikedMoviesQuery(movies), k, exclude)
}

func (s *Service) run(ctx context.Context, strategy, query string, k int, exclude map[int64]struct{}) (*Result, error) {
	start := time.Now()
	defer metrics.ObserveSearch(strategy, start)

	k = s.ClampK(k)
	movies, err := s.engine.SearchExcluding(ctx, query, k, exclude)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("recommendation served",
		zap.String("strategy", strategy),
		zap.Int("k", k),
		zap.Int("results", len(movies)),
		zap.Duration("took", time.Since(start)))
	return &Result{Strategy: strategy, Query: query, Movies: movies}, nil
}
