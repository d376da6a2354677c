package models

import "time"

// User is an account with the preferences used for profile recommendations.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password"`
	Location     string    `json:"location,omitempty" db:"location"`
	Genres       []string  `json:"genres,omitempty" db:"genres"`
	Languages    []string  `json:"languages,omitempty" db:"languages"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SearchHistoryEntry is one recorded user query.
type SearchHistoryEntry struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Query     string    `json:"query" db:"query"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Favorite is a (user, movie) like. Movie is populated on list operations.
type Favorite struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	MovieID   int64     `json:"movie_id" db:"movie_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Movie     *Movie    `json:"movie,omitempty"`
}
