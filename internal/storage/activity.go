package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/reelrank/internal/models"
)

// AddSearchHistory records a query for userID.
func (s *SQLiteStorage) AddSearchHistory(ctx context.Context, userID int64, query string) (*models.SearchHistoryEntry, error) {
	e := &models.SearchHistoryEntry{UserID: userID, Query: query, Timestamp: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_search_history (user_id, query, timestamp) VALUES (?, ?, ?)`,
		e.UserID, e.Query, e.Timestamp)
	if err != nil {
		return nil, err
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListSearchHistory returns up to limit entries, most recent first. A
// non-positive limit returns every entry.
func (s *SQLiteStorage) ListSearchHistory(ctx context.Context, userID int64, limit int) ([]models.SearchHistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, timestamp FROM user_search_history
		 WHERE user_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.SearchHistoryEntry{}
	for rows.Next() {
		var e models.SearchHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSearchHistory removes entry id if it belongs to userID.
func (s *SQLiteStorage) DeleteSearchHistory(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_search_history WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("search history %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddFavorite likes movieID for userID. The movie must exist; liking it
// twice is a conflict.
func (s *SQLiteStorage) AddFavorite(ctx context.Context, userID, movieID int64) (*models.Favorite, error) {
	movie, err := s.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	f := &models.Favorite{UserID: userID, MovieID: movieID, Timestamp: time.Now().UTC(), Movie: movie}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_favorites (user_id, movie_id, timestamp) VALUES (?, ?, ?)`,
		f.UserID, f.MovieID, f.Timestamp)
	if isUniqueViolation(err) {
		return nil, &ConflictError{Field: "favorite"}
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// RemoveFavorite unlikes movieID for userID.
func (s *SQLiteStorage) RemoveFavorite(ctx context.Context, userID, movieID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE user_id = ? AND movie_id = ?`, userID, movieID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("favorite %d: %w", movieID, ErrNotFound)
	}
	return nil
}

// ListFavorites returns one page of favorites, newest first, with movies attached.
func (s *SQLiteStorage) ListFavorites(ctx context.Context, userID int64, page, pageSize int) (*models.FavoriteListResponse, error) {
	q := models.MovieListQuery{Page: page, PageSize: pageSize}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	resp := &models.FavoriteListResponse{Favorites: []*models.Favorite{}, Page: q.Page, PageSize: q.PageSize}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_favorites WHERE user_id = ?`, userID).Scan(&resp.TotalCount); err != nil {
		return nil, err
	}
	favs, err := s.favorites(ctx, userID, q.PageSize, q.Offset())
	if err != nil {
		return nil, err
	}
	resp.Favorites = favs
	return resp, nil
}

// ListFavoriteMovies returns every favorited movie, most recently liked first.
func (s *SQLiteStorage) ListFavoriteMovies(ctx context.Context, userID int64) ([]*models.Movie, error) {
	favs, err := s.favorites(ctx, userID, -1, 0)
	if err != nil {
		return nil, err
	}
	movies := make([]*models.Movie, 0, len(favs))
	for _, f := range favs {
		if f.Movie != nil {
			movies = append(movies, f.Movie)
		}
	}
	return movies, nil
}

func (s *SQLiteStorage) favorites(ctx context.Context, userID int64, limit, offset int) ([]*models.Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, movie_id, timestamp FROM user_favorites
		 WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	favs := []*models.Favorite{}
	var ids []int64
	for rows.Next() {
		f := &models.Favorite{}
		if err := rows.Scan(&f.UserID, &f.MovieID, &f.Timestamp); err != nil {
			rows.Close()
			return nil, err
		}
		favs = append(favs, f)
		ids = append(ids, f.MovieID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	movies, err := s.GetMoviesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range favs {
		f.Movie = movies[f.MovieID]
	}
	return favs, nil
}
