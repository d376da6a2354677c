package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperjump/reelrank/internal/models"
)

const userColumns = `id, email, username, password, location, genres, languages, created_at`

// CreateUser inserts user and sets its ID and CreatedAt. A taken email or
// username yields a *ConflictError naming the field.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	for _, check := range []struct{ field, value string }{
		{"email", user.Email},
		{"username", user.Username},
	} {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM users WHERE `+check.field+` = ?`, check.value).Scan(&exists)
		if err == nil {
			return &ConflictError{Field: check.field}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	genres, languages, err := encodePreferences(user.Genres, user.Languages)
	if err != nil {
		return err
	}
	user.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, username, password, location, genres, languages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.Username, user.PasswordHash, user.Location, genres, languages, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return &ConflictError{Field: "user"}
	}
	if err != nil {
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

// GetUser returns a user by ID.
func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

// FindUser looks a user up by username, or by email when username is empty.
func (s *SQLiteStorage) FindUser(ctx context.Context, username, email string) (*models.User, error) {
	field, value := "username", username
	if username == "" {
		field, value = "email", email
	}
	if value == "" {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+field+` = ?`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s %q: %w", field, value, ErrNotFound)
	}
	return u, err
}

// UpdatePreferences replaces the user's location, genres and languages.
func (s *SQLiteStorage) UpdatePreferences(ctx context.Context, userID int64, prefs models.PreferencesRequest) (*models.User, error) {
	genres, languages, err := encodePreferences(prefs.Genres, prefs.Languages)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET location = ?, genres = ?, languages = ? WHERE id = ?`,
		prefs.Location, genres, languages, userID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return s.GetUser(ctx, userID)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var genres, languages string
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Location,
		&genres, &languages, &u.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(genres), &u.Genres); err != nil {
		return nil, fmt.Errorf("failed to unmarshal genres: %w", err)
	}
	if err := json.Unmarshal([]byte(languages), &u.Languages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal languages: %w", err)
	}
	return &u, nil
}

func encodePreferences(genres, languages []string) (string, string, error) {
	if genres == nil {
		genres = []string{}
	}
	if languages == nil {
		languages = []string{}
	}
	g, err := json.Marshal(genres)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal genres: %w", err)
	}
	l, err := json.Marshal(languages)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal languages: %w", err)
	}
	return string(g), string(l), nil
}
