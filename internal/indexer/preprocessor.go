package indexer

import (
	"strings"

	"github.com/hyperjump/reelrank/internal/models"
)

// Preprocess trims text and collapses runs of whitespace to one space.
func Preprocess(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// normalizeRecord cleans the free-text fields of r that feed the embedding
// and drops blank genres.
func normalizeRecord(r models.MovieRecord) models.MovieRecord {
	r.Title = Preprocess(r.Title)
	r.Description = Preprocess(r.Description)
	r.Overview = Preprocess(r.Overview)
	if len(r.Genres) > 0 {
		genres := make([]string, 0, len(r.Genres))
		for _, g := range r.Genres {
			if g = Preprocess(g); g != "" {
				genres = append(genres, g)
			}
		}
		r.Genres = genres
	}
	return r
}
