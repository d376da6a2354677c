package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a
// private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS movies (
		movie_id INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		poster_path TEXT NOT NULL DEFAULT '',
		release_date TEXT NOT NULL DEFAULT '',
		budget INTEGER NOT NULL DEFAULT 0,
		revenue INTEGER NOT NULL DEFAULT 0,
		runtime REAL NOT NULL DEFAULT 0,
		overview TEXT NOT NULL DEFAULT '',
		rating REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_movies_title ON movies(title);

	CREATE TABLE IF NOT EXISTS actors (
		actor_id INTEGER PRIMARY KEY,
		actor_name TEXT NOT NULL DEFAULT '',
		gender INTEGER NOT NULL DEFAULT 0,
		profile_path TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS movie_cast (
		movie_id INTEGER NOT NULL,
		actor_id INTEGER NOT NULL,
		character_name TEXT NOT NULL DEFAULT '',
		credit_order INTEGER NOT NULL DEFAULT 0,
		credit_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (movie_id, actor_id, character_name),
		FOREIGN KEY (movie_id) REFERENCES movies(movie_id) ON DELETE CASCADE,
		FOREIGN KEY (actor_id) REFERENCES actors(actor_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_movie_cast_actor ON movie_cast(actor_id);

	CREATE TABLE IF NOT EXISTS genres (
		genre_id INTEGER PRIMARY KEY AUTOINCREMENT,
		genre_name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS movie_genres (
		movie_id INTEGER NOT NULL,
		genre_id INTEGER NOT NULL,
		PRIMARY KEY (movie_id, genre_id),
		FOREIGN KEY (movie_id) REFERENCES movies(movie_id) ON DELETE CASCADE,
		FOREIGN KEY (genre_id) REFERENCES genres(genre_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_movie_genres_genre ON movie_genres(genre_id);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		genres TEXT NOT NULL DEFAULT '[]',
		languages TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		query TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_search_history_user ON user_search_history(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS user_favorites (
		user_id INTEGER NOT NULL,
		movie_id INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, movie_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (movie_id) REFERENCES movies(movie_id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// inClause returns "?, ?, ..." for n placeholders and ids as query args.
func inClause(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
