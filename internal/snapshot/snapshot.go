// Package snapshot persists the recommendation engine's index vectors and
// movie metadata so they survive restarts.
package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/models"
)

// ErrNotFound is returned by Load when no snapshot has been saved yet.
var ErrNotFound = errors.New("snapshot not found")

// State is the durable form of the engine: vectors in ordinal order, the
// ordinal to MovieId list, cached metadata and tombstoned ids.
type State struct {
	Dimensions  int
	Vectors     [][]float32
	MovieIDs    []int64
	Metadata    map[int64]*models.MovieRecord
	Removed     []int64
	LastUpdated time.Time
}

// Validate checks the invariants a restored engine relies on.
func (s *State) Validate() error {
	if len(s.MovieIDs) != len(s.Vectors) {
		return fmt.Errorf("snapshot has %d movie ids for %d vectors", len(s.MovieIDs), len(s.Vectors))
	}
	for i, v := range s.Vectors {
		if len(v) != s.Dimensions {
			return fmt.Errorf("snapshot vector %d has %d values, want %d", i, len(v), s.Dimensions)
		}
	}
	for i, id := range s.MovieIDs {
		if _, ok := s.Metadata[id]; !ok {
			return fmt.Errorf("snapshot ordinal %d references movie %d with no metadata", i, id)
		}
	}
	return nil
}

// Store saves and loads engine snapshots. Save replaces the previous
// snapshot as a unit; Load returns ErrNotFound before the first Save.
type Store interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context) (*State, error)
	Close() error
}

// Open returns the store selected by cfg.SnapshotBackend.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.SnapshotBackend {
	case "file", "":
		return NewFileStore(cfg.SnapshotDir)
	case "badger":
		return NewBadgerStore(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %s (supported: file, badger)", cfg.SnapshotBackend)
	}
}

// metadataDoc is the JSON half of a snapshot.
type metadataDoc struct {
	Dimensions  int                           `json:"dimensions"`
	MovieIDs    []int64                       `json:"movie_ids"`
	Metadata    map[int64]*models.MovieRecord `json:"movie_metadata"`
	Removed     []int64                       `json:"removed,omitempty"`
	LastUpdated time.Time                     `json:"last_updated"`
}

func encodeMetadata(s *State) ([]byte, error) {
	data, err := json.Marshal(metadataDoc{
		Dimensions:  s.Dimensions,
		MovieIDs:    s.MovieIDs,
		Metadata:    s.Metadata,
		Removed:     s.Removed,
		LastUpdated: s.LastUpdated,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte, s *State) error {
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal snapshot metadata: %w", err)
	}
	s.MovieIDs = doc.MovieIDs
	s.Metadata = doc.Metadata
	s.Removed = doc.Removed
	s.LastUpdated = doc.LastUpdated
	if s.Metadata == nil {
		s.Metadata = make(map[int64]*models.MovieRecord)
	}
	if s.MovieIDs == nil {
		s.MovieIDs = []int64{}
	}
	return nil
}

// encodeVectors writes dimension (uint32), count (uint32), then count rows of
// dimension little-endian float32 values.
func encodeVectors(dimensions int, vectors [][]float32) []byte {
	const size = 4
	out := make([]byte, 8+len(vectors)*dimensions*size)
	binary.LittleEndian.PutUint32(out[0:4], uint32(dimensions))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(vectors)))
	off := 8
	for _, vec := range vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(out[off:off+size], math.Float32bits(v))
			off += size
		}
	}
	return out
}

// decodeVectors reads the layout written by encodeVectors. size is the total
// encoded length; a header promising more rows than size can hold is rejected
// before anything is allocated.
func decodeVectors(r io.Reader, size int64) (int, [][]float32, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, nil, fmt.Errorf("read vector header: %w", err)
	}
	dim, n := uint64(header[0]), uint64(header[1])
	body := uint64(0)
	if size > 8 {
		body = uint64(size - 8)
	}
	if n > 0 && (dim == 0 || n > body/(dim*4)) {
		return 0, nil, fmt.Errorf("vector header claims %d rows of %d values but only %d bytes follow", n, dim, body)
	}
	buf := make([]byte, dim*4)
	vectors := make([][]float32, n)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		vectors[i] = vec
	}
	return int(dim), vectors, nil
}

func decodeVectorBytes(b []byte) (int, [][]float32, error) {
	return decodeVectors(bytes.NewReader(b), int64(len(b)))
}
