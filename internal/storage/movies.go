package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/reelrank/internal/models"
)

const movieColumns = `movie_id, title, poster_path, release_date, budget, revenue, runtime, overview, rating`

// UpsertMovie inserts or updates a single movie.
func (s *SQLiteStorage) UpsertMovie(ctx context.Context, m *models.Movie) error {
	return s.UpsertMovies(ctx, []*models.Movie{m})
}

// UpsertMovies inserts or updates movies in one transaction. Genres and cast
// are replaced only when the incoming movie carries them, so a re-ingest of
// bare catalog rows keeps relations loaded earlier. Genres given by name are
// created on first use.
func (s *SQLiteStorage) UpsertMovies(ctx context.Context, movies []*models.Movie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, m := range movies {
		if m == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO movies (`+movieColumns+`, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(movie_id) DO UPDATE SET
				title = excluded.title,
				poster_path = excluded.poster_path,
				release_date = excluded.release_date,
				budget = excluded.budget,
				revenue = excluded.revenue,
				runtime = excluded.runtime,
				overview = excluded.overview,
				rating = excluded.rating,
				updated_at = excluded.updated_at`,
			m.MovieID, m.Title, m.PosterPath, m.ReleaseDate, m.Budget, m.Revenue,
			m.Runtime, m.Overview, m.Rating, now,
		); err != nil {
			return fmt.Errorf("upsert movie %d: %w", m.MovieID, err)
		}
		if len(m.Genres) > 0 {
			if err := replaceGenres(ctx, tx, m); err != nil {
				return fmt.Errorf("genres for movie %d: %w", m.MovieID, err)
			}
		}
		if len(m.Cast) > 0 {
			if err := replaceCast(ctx, tx, m); err != nil {
				return fmt.Errorf("cast for movie %d: %w", m.MovieID, err)
			}
		}
	}
	return tx.Commit()
}

func replaceGenres(ctx context.Context, tx *sql.Tx, m *models.Movie) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM movie_genres WHERE movie_id = ?`, m.MovieID); err != nil {
		return err
	}
	for i := range m.Genres {
		g := &m.Genres[i]
		name := strings.TrimSpace(g.GenreName)
		switch {
		case g.GenreID > 0:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO genres (genre_id, genre_name) VALUES (?, ?)
				 ON CONFLICT(genre_id) DO NOTHING`, g.GenreID, name); err != nil {
				return err
			}
		case name != "":
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO genres (genre_name) VALUES (?) ON CONFLICT(genre_name) DO NOTHING`, name); err != nil {
				return err
			}
			if err := tx.QueryRowContext(ctx,
				`SELECT genre_id FROM genres WHERE genre_name = ?`, name).Scan(&g.GenreID); err != nil {
				return err
			}
		default:
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO movie_genres (movie_id, genre_id) VALUES (?, ?)`,
			m.MovieID, g.GenreID); err != nil {
			return err
		}
	}
	return nil
}

func replaceCast(ctx context.Context, tx *sql.Tx, m *models.Movie) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM movie_cast WHERE movie_id = ?`, m.MovieID); err != nil {
		return err
	}
	for _, c := range m.Cast {
		if c.Actor != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO actors (actor_id, actor_name, gender, profile_path) VALUES (?, ?, ?, ?)
				 ON CONFLICT(actor_id) DO UPDATE SET
					actor_name = excluded.actor_name,
					gender = excluded.gender,
					profile_path = excluded.profile_path`,
				c.ActorID, c.Actor.ActorName, c.Actor.Gender, c.Actor.ProfilePath); err != nil {
				return err
			}
		} else if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO actors (actor_id) VALUES (?)`, c.ActorID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO movie_cast (movie_id, actor_id, character_name, credit_order, credit_id)
			 VALUES (?, ?, ?, ?, ?)`,
			m.MovieID, c.ActorID, c.CharacterName, c.CreditOrder, c.CreditID); err != nil {
			return err
		}
	}
	return nil
}

// GetMovie returns a movie with its cast and genres.
func (s *SQLiteStorage) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	found, err := s.GetMoviesByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	m, ok := found[id]
	if !ok {
		return nil, fmt.Errorf("movie %d: %w", id, ErrNotFound)
	}
	return m, nil
}

// GetMoviesByIDs returns the known movies among ids, fully joined. Unknown
// ids are absent from the map.
func (s *SQLiteStorage) GetMoviesByIDs(ctx context.Context, ids []int64) (map[int64]*models.Movie, error) {
	out := make(map[int64]*models.Movie, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE movie_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	movies, err := scanMovies(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachRelations(ctx, movies); err != nil {
		return nil, err
	}
	for _, m := range movies {
		out[m.MovieID] = m
	}
	return out, nil
}

// ListMovies returns one page of movies matching the query filters, ordered
// by id, and the total number of matches.
func (s *SQLiteStorage) ListMovies(ctx context.Context, q models.MovieListQuery) (*models.MovieListResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var where []string
	var args []interface{}
	if q.GenreID > 0 {
		where = append(where, `movie_id IN (SELECT movie_id FROM movie_genres WHERE genre_id = ?)`)
		args = append(args, q.GenreID)
	}
	if q.ActorID > 0 {
		where = append(where, `movie_id IN (SELECT movie_id FROM movie_cast WHERE actor_id = ?)`)
		args = append(args, q.ActorID)
	}
	if q.Search != "" {
		where = append(where, `title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	resp := &models.MovieListResponse{Movies: []*models.Movie{}, Page: q.Page, PageSize: q.PageSize}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`+clause, args...).Scan(&resp.TotalCount); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movieColumns+` FROM movies`+clause+` ORDER BY movie_id LIMIT ? OFFSET ?`,
		append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, err
	}
	movies, err := scanMovies(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachRelations(ctx, movies); err != nil {
		return nil, err
	}
	if movies != nil {
		resp.Movies = movies
	}
	return resp, nil
}

// ListGenres returns every genre ordered by name.
func (s *SQLiteStorage) ListGenres(ctx context.Context) ([]models.Genre, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT genre_id, genre_name FROM genres ORDER BY genre_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	genres := []models.Genre{}
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.GenreID, &g.GenreName); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// CountMovies returns the total number of movies.
func (s *SQLiteStorage) CountMovies(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&count)
	return count, err
}

func scanMovies(rows *sql.Rows) ([]*models.Movie, error) {
	defer rows.Close()
	var movies []*models.Movie
	for rows.Next() {
		m := &models.Movie{Cast: []models.CastMember{}, Genres: []models.Genre{}}
		if err := rows.Scan(&m.MovieID, &m.Title, &m.PosterPath, &m.ReleaseDate, &m.Budget,
			&m.Revenue, &m.Runtime, &m.Overview, &m.Rating); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// attachRelations loads cast and genres for movies with two queries.
func (s *SQLiteStorage) attachRelations(ctx context.Context, movies []*models.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Movie, len(movies))
	ids := make([]int64, 0, len(movies))
	for _, m := range movies {
		byID[m.MovieID] = m
		ids = append(ids, m.MovieID)
	}
	in, args := inClause(ids)

	rows, err := s.db.QueryContext(ctx,
		`SELECT mg.movie_id, g.genre_id, g.genre_name
		 FROM movie_genres mg JOIN genres g ON g.genre_id = mg.genre_id
		 WHERE mg.movie_id IN (`+in+`) ORDER BY g.genre_name`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var movieID int64
		var g models.Genre
		if err := rows.Scan(&movieID, &g.GenreID, &g.GenreName); err != nil {
			rows.Close()
			return err
		}
		byID[movieID].Genres = append(byID[movieID].Genres, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT mc.movie_id, mc.actor_id, mc.character_name, mc.credit_order, mc.credit_id,
			a.actor_name, a.gender, a.profile_path
		 FROM movie_cast mc JOIN actors a ON a.actor_id = mc.actor_id
		 WHERE mc.movie_id IN (`+in+`) ORDER BY mc.movie_id, mc.credit_order`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var movieID int64
		var c models.CastMember
		a := &models.Actor{}
		if err := rows.Scan(&movieID, &c.ActorID, &c.CharacterName, &c.CreditOrder, &c.CreditID,
			&a.ActorName, &a.Gender, &a.ProfilePath); err != nil {
			return err
		}
		a.ActorID = c.ActorID
		c.Actor = a
		byID[movieID].Cast = append(byID[movieID].Cast, c)
	}
	return rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
