package recommend

import (
	"strings"

	"github.com/hyperjump/reelrank/internal/models"
	"github.com/hyperjump/reelrank/pkg/utils"
)

// FallbackQuery is used when a strategy has no signal to work with.
const FallbackQuery = "popular movies"

const (
	genreWeight        = 2
	languageWeight     = 1
	titleWeight        = 3
	likedGenreWeight   = 2
	minDescriptionRune = 2
)

// DefaultHistoryDepth is how many recent queries the history strategy uses.
const DefaultHistoryDepth = 5

// ProfileQuery builds a query from a user's stored preferences: the location
// once, each genre as "genre:<g>" twice and each language as "language:<l>"
// once.
func ProfileQuery(u *models.User) string {
	if u == nil {
		return FallbackQuery
	}
	var parts []string
	if loc := strings.TrimSpace(u.Location); loc != "" {
		parts = append(parts, loc)
	}
	for _, g := range u.Genres {
		if g = strings.TrimSpace(g); g != "" {
			parts = appendRepeated(parts, "genre:"+g, genreWeight)
		}
	}
	for _, l := range u.Languages {
		if l = strings.TrimSpace(l); l != "" {
			parts = appendRepeated(parts, "language:"+l, languageWeight)
		}
	}
	return joinOrFallback(parts)
}

// HistoryQuery weights recent searches. entries must be most recent first;
// only the first depth are used and the i-th is repeated depth-i times.
func HistoryQuery(entries []models.SearchHistoryEntry, depth int) string {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	if len(entries) > depth {
		entries = entries[:depth]
	}
	var parts []string
	for i, e := range entries {
		if q := strings.TrimSpace(e.Query); q != "" {
			parts = appendRepeated(parts, q, depth-i)
		}
	}
	return joinOrFallback(parts)
}

// LikedMoviesQuery builds a query from favorite movies in list order: the
// title three times, each genre as "genre:<g>" twice, then the content words
// of the overview once each.
func LikedMoviesQuery(movies []*models.Movie) string {
	var parts []string
	for _, m := range movies {
		if m == nil {
			continue
		}
		if t := strings.TrimSpace(m.Title); t != "" {
			parts = appendRepeated(parts, t, titleWeight)
		}
		for _, g := range m.GenreNames() {
			parts = appendRepeated(parts, "genre:"+g, likedGenreWeight)
		}
		parts = append(parts, utils.ContentTerms(m.Overview, minDescriptionRune)...)
	}
	return joinOrFallback(parts)
}

func appendRepeated(parts []string, s string, n int) []string {
	for i := 0; i < n; i++ {
		parts = append(parts, s)
	}
	return parts
}

func joinOrFallback(parts []string) string {
	if len(parts) == 0 {
		return FallbackQuery
	}
	return strings.Join(parts, " ")
}
