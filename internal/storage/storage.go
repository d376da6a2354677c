// Package storage persists the relational movie catalog and user activity.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/reelrank/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// ConflictError names the field whose uniqueness was violated.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already exists"
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Storage defines catalog, account and activity persistence operations.
type Storage interface {
	// Catalog
	UpsertMovies(ctx context.Context, movies []*models.Movie) error
	GetMovie(ctx context.Context, id int64) (*models.Movie, error)
	GetMoviesByIDs(ctx context.Context, ids []int64) (map[int64]*models.Movie, error)
	ListMovies(ctx context.Context, q models.MovieListQuery) (*models.MovieListResponse, error)
	ListGenres(ctx context.Context) ([]models.Genre, error)
	CountMovies(ctx context.Context) (int64, error)

	// Accounts
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindUser(ctx context.Context, username, email string) (*models.User, error)
	UpdatePreferences(ctx context.Context, userID int64, prefs models.PreferencesRequest) (*models.User, error)

	// Activity
	AddSearchHistory(ctx context.Context, userID int64, query string) (*models.SearchHistoryEntry, error)
	ListSearchHistory(ctx context.Context, userID int64, limit int) ([]models.SearchHistoryEntry, error)
	DeleteSearchHistory(ctx context.Context, id, userID int64) error
	AddFavorite(ctx context.Context, userID, movieID int64) (*models.Favorite, error)
	RemoveFavorite(ctx context.Context, userID, movieID int64) error
	ListFavorites(ctx context.Context, userID int64, page, pageSize int) (*models.FavoriteListResponse, error)
	ListFavoriteMovies(ctx context.Context, userID int64) ([]*models.Movie, error)

	Close() error
}
