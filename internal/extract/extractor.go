// Package extract loads movie catalog batches from JSON, JSON Lines, CSV and
// Excel files.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/reelrank/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions Load cannot read.
var ErrUnsupportedFormat = errors.New("unsupported catalog format")

// SupportedExtensions lists the extensions Load accepts.
var SupportedExtensions = []string{".json", ".jsonl", ".csv", ".xlsx"}

// Loader reads movie records from catalog files.
type Loader struct{}

// NewLoader returns a new Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the file at path and returns its movie records in file order.
func (l *Loader) Load(path string) ([]models.MovieRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return l.LoadBytes(content, strings.ToLower(filepath.Ext(path)))
}

// LoadBytes parses content based on the given extension.
// ext should include the leading dot (e.g. ".csv").
func (l *Loader) LoadBytes(content []byte, ext string) ([]models.MovieRecord, error) {
	switch ext {
	case ".json":
		return loadJSON(content)
	case ".jsonl", ".ndjson":
		return loadJSONLines(content)
	case ".csv":
		return loadCSV(content)
	case ".xlsx":
		return loadExcel(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Supported reports whether path has an extension Load accepts.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
