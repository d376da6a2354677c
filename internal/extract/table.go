package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/reelrank/internal/models"
)

// columnAliases maps normalized header names to record fields.
var columnAliases = map[string]string{
	"id":           "id",
	"movie_id":     "id",
	"movieid":      "id",
	"title":        "title",
	"name":         "title",
	"description":  "description",
	"overview":     "overview",
	"plot":         "description",
	"genres":       "genres",
	"genre":        "genres",
	"poster_path":  "poster_path",
	"poster":       "poster_path",
	"release_date": "release_date",
	"released":     "release_date",
	"budget":       "budget",
	"revenue":      "revenue",
	"runtime":      "runtime",
	"rating":       "rating",
	"vote_average": "rating",
}

func loadCSV(content []byte) ([]models.MovieRecord, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	return recordsFromRows(rows)
}

// loadExcel reads the first sheet; the first row is the header.
func loadExcel(content []byte) ([]models.MovieRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []models.MovieRecord{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return recordsFromRows(rows)
}

// recordsFromRows maps a header row plus data rows to records. Unknown
// columns are ignored and blank rows skipped.
func recordsFromRows(rows [][]string) ([]models.MovieRecord, error) {
	movies := []models.MovieRecord{}
	if len(rows) == 0 {
		return movies, nil
	}
	fields := make([]string, len(rows[0]))
	known := 0
	for i, h := range rows[0] {
		if f, ok := columnAliases[normalizeHeader(h)]; ok {
			fields[i] = f
			known++
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("header row has no known columns: %v", rows[0])
	}

	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		var m models.MovieRecord
		for i, cell := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			if err := setField(&m, fields[i], strings.TrimSpace(cell)); err != nil {
				// n+2: one-based, after the header.
				return nil, fmt.Errorf("row %d: %w", n+2, err)
			}
		}
		movies = append(movies, m)
	}
	return movies, nil
}

func setField(m *models.MovieRecord, field, v string) error {
	if v == "" {
		return nil
	}
	switch field {
	case "id":
		id, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("id %q: %w", v, err)
		}
		m.ID = &id
	case "title":
		m.Title = v
	case "description":
		m.Description = v
	case "overview":
		m.Overview = v
	case "genres":
		m.Genres = splitGenres(v)
	case "poster_path":
		m.PosterPath = v
	case "release_date":
		m.ReleaseDate = v
	case "budget", "revenue":
		n, err := parseInt(v)
		if err != nil {
			return fmt.Errorf("%s %q: %w", field, v, err)
		}
		if field == "budget" {
			m.Budget = n
		} else {
			m.Revenue = n
		}
	case "runtime", "rating":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s %q: %w", field, v, err)
		}
		if field == "runtime" {
			m.Runtime = f
		} else {
			m.Rating = f
		}
	}
	return nil
}

// parseInt accepts integers and integral floats such as "1.5e6" or "42.0".
func parseInt(v string) (int64, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int64(f), nil
}

// splitGenres splits on "|" when present, otherwise on ",".
func splitGenres(v string) []string {
	sep := ","
	if strings.Contains(v, "|") {
		sep = "|"
	}
	var out []string
	for _, g := range strings.Split(v, sep) {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.Fields(h), "_")
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
