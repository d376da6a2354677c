// Package models defines core data structures for movies, users, activity, and API payloads.
package models

import "strings"

// MovieRecord is the denormalized movie payload accepted for ingestion and
// cached beside the vector index. Every field is optional except that a
// record without title and description still embeds (as an empty string).
type MovieRecord struct {
	ID          *int64   `json:"id,omitempty" yaml:"id,omitempty"`
	MovieID     *int64   `json:"movie_id,omitempty" yaml:"movie_id,omitempty"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Overview    string   `json:"overview,omitempty" yaml:"overview,omitempty"`
	Genres      []string `json:"genres,omitempty" yaml:"genres,omitempty"`
	PosterPath  string   `json:"poster_path,omitempty" yaml:"poster_path,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	Budget      int64    `json:"budget,omitempty" yaml:"budget,omitempty"`
	Revenue     int64    `json:"revenue,omitempty" yaml:"revenue,omitempty"`
	Runtime     float64  `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Rating      float64  `json:"rating,omitempty" yaml:"rating,omitempty"`
}

// Key returns the record's movie id, preferring "id" over "movie_id".
func (r *MovieRecord) Key() (int64, bool) {
	if r.ID != nil {
		return *r.ID, true
	}
	if r.MovieID != nil {
		return *r.MovieID, true
	}
	return 0, false
}

// SetKey sets both id fields to id.
func (r *MovieRecord) SetKey(id int64) {
	r.ID = &id
	r.MovieID = &id
}

// Synopsis returns the description, falling back to the overview.
func (r *MovieRecord) Synopsis() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Overview
}

// EmbeddingText is the text embedded for this movie: title and synopsis joined by a space.
func (r *MovieRecord) EmbeddingText() string {
	return strings.TrimSpace(r.Title + " " + r.Synopsis())
}

// Clone returns a deep copy of r.
func (r *MovieRecord) Clone() *MovieRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ID != nil {
		id := *r.ID
		c.ID = &id
	}
	if r.MovieID != nil {
		id := *r.MovieID
		c.MovieID = &id
	}
	c.Genres = append([]string(nil), r.Genres...)
	return &c
}

// Actor is a cast member's person record.
type Actor struct {
	ActorID     int64  `json:"actor_id" db:"actor_id"`
	ActorName   string `json:"actor_name,omitempty" db:"actor_name"`
	Gender      int    `json:"gender,omitempty" db:"gender"`
	ProfilePath string `json:"profile_path,omitempty" db:"profile_path"`
}

// CastMember links an actor to a movie.
type CastMember struct {
	ActorID       int64  `json:"actor_id" db:"actor_id"`
	CharacterName string `json:"character_name,omitempty" db:"character_name"`
	CreditOrder   int    `json:"credit_order,omitempty" db:"credit_order"`
	CreditID      string `json:"credit_id,omitempty" db:"credit_id"`
	Actor         *Actor `json:"actor,omitempty"`
}

// Genre is a catalog genre.
type Genre struct {
	GenreID   int64  `json:"genre_id" db:"genre_id"`
	GenreName string `json:"genre_name,omitempty" db:"genre_name"`
}

// Movie is the fully joined relational movie record.
type Movie struct {
	MovieID     int64        `json:"movie_id" db:"movie_id"`
	Title       string       `json:"title,omitempty" db:"title"`
	PosterPath  string       `json:"poster_path,omitempty" db:"poster_path"`
	ReleaseDate string       `json:"release_date,omitempty" db:"release_date"`
	Budget      int64        `json:"budget,omitempty" db:"budget"`
	Revenue     int64        `json:"revenue,omitempty" db:"revenue"`
	Runtime     float64      `json:"runtime,omitempty" db:"runtime"`
	Overview    string       `json:"overview,omitempty" db:"overview"`
	Rating      float64      `json:"rating,omitempty" db:"rating"`
	Cast        []CastMember `json:"cast"`
	Genres      []Genre      `json:"genres"`
}

// GenreNames returns the names of m's genres in order.
func (m *Movie) GenreNames() []string {
	names := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		if g.GenreName != "" {
			names = append(names, g.GenreName)
		}
	}
	return names
}

// MovieFromRecord converts an ingest record into a relational movie. Genres
// carry names only; the store assigns genre ids.
func MovieFromRecord(id int64, r *MovieRecord) *Movie {
	m := &Movie{
		MovieID:     id,
		Title:       r.Title,
		PosterPath:  r.PosterPath,
		ReleaseDate: r.ReleaseDate,
		Budget:      r.Budget,
		Revenue:     r.Revenue,
		Runtime:     r.Runtime,
		Overview:    r.Synopsis(),
		Rating:      r.Rating,
	}
	for _, g := range r.Genres {
		m.Genres = append(m.Genres, Genre{GenreName: g})
	}
	return m
}

// EnrichedMovie is a ranked movie returned by search and recommendation.
type EnrichedMovie struct {
	MovieID         int64        `json:"movie_id"`
	Title           string       `json:"title"`
	PosterPath      string       `json:"poster_path,omitempty"`
	ReleaseDate     string       `json:"release_date,omitempty"`
	Budget          int64        `json:"budget,omitempty"`
	Revenue         int64        `json:"revenue,omitempty"`
	Runtime         float64      `json:"runtime,omitempty"`
	Overview        string       `json:"overview,omitempty"`
	Rating          float64      `json:"rating,omitempty"`
	Cast            []CastMember `json:"cast"`
	Genres          []string     `json:"genres"`
	SimilarityScore float64      `json:"similarity_score"`
}
