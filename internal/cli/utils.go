// Package cli renders command output for reelrank.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperjump/reelrank/internal/indexer"
	"github.com/hyperjump/reelrank/internal/recommend"
	"github.com/hyperjump/reelrank/internal/storage"
	"github.com/hyperjump/reelrank/pkg/utils"
)

// OutputFormat selects text or JSON output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// overviewWords caps the overview shown per movie in text output.
const overviewWords = 30

// SearchOutput is a rendered search: the engine result and how long it took.
type SearchOutput struct {
	*recommend.Result
	TookMs int64 `json:"took_ms"`
}

// StatusReport is the output of `reelrank status`.
type StatusReport struct {
	Engine       recommend.Stats   `json:"engine"`
	CatalogCount int64             `json:"catalog_movies"`
	KeywordDocs  uint64            `json:"keyword_documents"`
	Footprint    storage.Footprint `json:"disk_usage"`
	EmbeddingBy  string            `json:"embedding_provider"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a ranked result to w in the given format.
func WriteSearchResults(w io.Writer, res *recommend.Result, took time.Duration, format OutputFormat) error {
	out := SearchOutput{Result: res, TookMs: took.Milliseconds()}
	if format == OutputJSON {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "\nFound %d movies for %q in %dms\n\n", len(res.Movies), res.Query, out.TookMs)
	for i, m := range res.Movies {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d  %s  (id %d, similarity %.4f)\n", i+1, m.Title, m.MovieID, m.SimilarityScore)
		var facts []string
		if m.ReleaseDate != "" {
			facts = append(facts, m.ReleaseDate)
		}
		if len(m.Genres) > 0 {
			facts = append(facts, strings.Join(m.Genres, ", "))
		}
		if m.Rating > 0 {
			facts = append(facts, fmt.Sprintf("rated %.1f", m.Rating))
		}
		if len(facts) > 0 {
			fmt.Fprintf(w, "%s\n", strings.Join(facts, " | "))
		}
		if m.Overview != "" {
			fmt.Fprintf(w, "\n%s\n", TruncateWords(m.Overview, overviewWords))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteIngestResults summarizes ingested files.
func WriteIngestResults(w io.Writer, results []*indexer.FileResult, format OutputFormat) error {
	if results == nil {
		results = []*indexer.FileResult{}
	}
	if format == OutputJSON {
		return writeJSON(w, results)
	}
	total := 0
	for _, r := range results {
		state := fmt.Sprintf("%d movies", r.Movies)
		switch {
		case r.Skipped:
			state = "unchanged, skipped"
		case !r.Persisted:
			state += " (snapshot not persisted)"
		}
		fmt.Fprintf(w, "%s: %s\n", r.Path, state)
		total += r.Movies
	}
	fmt.Fprintf(w, "Ingested %d movies from %d files\n", total, len(results))
	return nil
}

// WriteStatus writes the status report.
func WriteStatus(w io.Writer, st StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Catalog movies:     %d\n", st.CatalogCount)
	fmt.Fprintf(w, "Keyword documents:  %d\n", st.KeywordDocs)
	fmt.Fprintf(w, "Indexed vectors:    %d (%d movies, %d removed)\n", st.Engine.Vectors, st.Engine.Movies, st.Engine.Removed)
	fmt.Fprintf(w, "Index:              %s, %s, %d dimensions\n", st.Engine.IndexType, st.Engine.Metric, st.Engine.Dimensions)
	if st.EmbeddingBy != "" {
		fmt.Fprintf(w, "Embedding provider: %s\n", st.EmbeddingBy)
	}
	if !st.Engine.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Last updated:       %s\n", st.Engine.LastUpdated.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Disk usage:         %s (database %s, snapshots %s)\n",
		FormatBytes(st.Footprint.Total()), FormatBytes(st.Footprint.Database), FormatBytes(st.Footprint.Snapshots))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// Truncate truncates s to maxLen bytes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}
