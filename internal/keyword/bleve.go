package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/reelrank/internal/models"
)

const defaultTitleBoost = 3.0

// BleveIndex implements MovieIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path
// creates a memory-only index.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	movieMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so title
	// terms stay usable as spelling suggestions.
	textFieldMapping.Analyzer = standard.Name
	movieMapping.AddFieldMappingsAt("title", textFieldMapping)
	movieMapping.AddFieldMappingsAt("overview", textFieldMapping)
	genreFieldMapping := bleve.NewTextFieldMapping()
	genreFieldMapping.Analyzer = keywordanalyzer.Name
	movieMapping.AddFieldMappingsAt("genres", genreFieldMapping)
	im.AddDocumentMapping("movie", movieMapping)
	im.DefaultType = "movie"
	im.DefaultMapping = movieMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces movies in one batch.
func (b *BleveIndex) Index(ctx context.Context, movies []*models.Movie) error {
	batch := b.index.NewBatch()
	for _, m := range movies {
		if m == nil {
			continue
		}
		doc := map[string]interface{}{
			"title":    m.Title,
			"overview": m.Overview,
			"genres":   m.GenreNames(),
		}
		if err := batch.Index(docID(m.MovieID), doc); err != nil {
			return fmt.Errorf("index movie %d: %w", m.MovieID, err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	return b.index.Batch(batch)
}

// Search matches query against titles, overviews and genres and returns up
// to limit hits, best first. Title matches are boosted.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}
	titleBoost := defaultTitleBoost
	fuzziness := 0
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.Fuzzy {
			fuzziness = opts.Fuzziness
			if fuzziness <= 0 || fuzziness > 2 {
				fuzziness = 1
			}
		}
	}

	title := fieldQuery(query, "title", fuzziness)
	title.SetBoost(titleBoost)
	overview := fieldQuery(query, "overview", fuzziness)
	genre := bleve.NewTermQuery(query)
	genre.SetField("genres")

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(title, overview, genre), limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Result{MovieID: id, Score: hit.Score})
	}
	return out, nil
}

func fieldQuery(query, field string, fuzziness int) *blevequery.MatchQuery {
	q := bleve.NewMatchQuery(query)
	q.SetField(field)
	if fuzziness > 0 {
		q.SetFuzziness(fuzziness)
	}
	return q
}

// Delete removes a movie from the index.
func (b *BleveIndex) Delete(ctx context.Context, movieID int64) error {
	return b.index.Delete(docID(movieID))
}

// DocCount returns the number of indexed movies.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func docID(movieID int64) string {
	return strconv.FormatInt(movieID, 10)
}
