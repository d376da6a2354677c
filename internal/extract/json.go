package extract

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/hyperjump/reelrank/internal/models"
)

// loadJSON accepts a top-level array of movies or an object with a "movies" array.
func loadJSON(content []byte) ([]models.MovieRecord, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return []models.MovieRecord{}, nil
	}
	if trimmed[0] == '{' {
		var wrapped struct {
			Movies []models.MovieRecord `json:"movies"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
		if wrapped.Movies == nil {
			return []models.MovieRecord{}, nil
		}
		return wrapped.Movies, nil
	}
	var movies []models.MovieRecord
	if err := json.Unmarshal(trimmed, &movies); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if movies == nil {
		movies = []models.MovieRecord{}
	}
	return movies, nil
}

// loadJSONLines reads one movie object per non-blank line.
func loadJSONLines(content []byte) ([]models.MovieRecord, error) {
	movies := []models.MovieRecord{}
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var m models.MovieRecord
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parse JSON line %d: %w", line, err)
		}
		movies = append(movies, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read JSON lines: %w", err)
	}
	return movies, nil
}
