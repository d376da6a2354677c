// Package keyword provides full-text title search over the movie catalog.
package keyword

import (
	"context"

	"github.com/hyperjump/reelrank/internal/models"
)

// SearchOptions tunes a keyword search. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of title matches relative to overview
	// and genre matches. Values <= 0 mean 3.0.
	TitleBoost float64
	// Fuzzy enables typo-tolerant matching.
	Fuzzy bool
	// Fuzziness is the maximum edit distance when Fuzzy is set (1 or 2, default 1).
	Fuzziness int
}

// Result is a single keyword hit.
type Result struct {
	MovieID int64
	Score   float64
}

// MovieIndex defines keyword indexing and search over movies.
type MovieIndex interface {
	Index(ctx context.Context, movies []*models.Movie) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error)
	Delete(ctx context.Context, movieID int64) error
	// Suggest returns a respelled query built from indexed title terms, and
	// whether any term was changed.
	Suggest(query string) (string, bool, error)
	DocCount() (uint64, error)
	Close() error
}
