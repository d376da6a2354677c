package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/models"
)

func record(id int64, title string) *models.MovieRecord {
	r := &models.MovieRecord{Title: title, Genres: []string{"Drama"}}
	r.SetKey(id)
	return r
}

func sampleState() *State {
	return &State{
		Dimensions: 3,
		Vectors:    [][]float32{{1, 0, 0}, {0, 1.5, -2}},
		MovieIDs:   []int64{10, 20},
		Metadata: map[int64]*models.MovieRecord{
			10: record(10, "Dune"),
			20: record(20, "Cars"),
		},
		Removed:     []int64{20},
		LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("load_before_save", func(t *testing.T) {
		s := open(t)
		if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("round_trip", func(t *testing.T) {
		s := open(t)
		want := sampleState()
		if err := s.Save(ctx, want); err != nil {
			t.Fatal(err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if err := got.Validate(); err != nil {
			t.Fatalf("loaded state invalid: %v", err)
		}
		if got.Dimensions != 3 || len(got.Vectors) != 2 || got.Vectors[1][2] != -2 {
			t.Errorf("vectors = %v (dims %d)", got.Vectors, got.Dimensions)
		}
		if len(got.MovieIDs) != 2 || got.MovieIDs[0] != 10 || got.MovieIDs[1] != 20 {
			t.Errorf("movie ids = %v", got.MovieIDs)
		}
		if got.Metadata[20] == nil || got.Metadata[20].Title != "Cars" || got.Metadata[20].Genres[0] != "Drama" {
			t.Errorf("metadata = %+v", got.Metadata[20])
		}
		if len(got.Removed) != 1 || got.Removed[0] != 20 {
			t.Errorf("removed = %v", got.Removed)
		}
		if !got.LastUpdated.Equal(want.LastUpdated) {
			t.Errorf("last updated = %v", got.LastUpdated)
		}
	})

	t.Run("save_replaces", func(t *testing.T) {
		s := open(t)
		if err := s.Save(ctx, sampleState()); err != nil {
			t.Fatal(err)
		}
		next := &State{
			Dimensions: 3,
			Vectors:    [][]float32{{0, 0, 1}},
			MovieIDs:   []int64{30},
			Metadata:   map[int64]*models.MovieRecord{30: record(30, "Heat")},
		}
		if err := s.Save(ctx, next); err != nil {
			t.Fatal(err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.MovieIDs) != 1 || got.MovieIDs[0] != 30 || len(got.Removed) != 0 {
			t.Errorf("expected only the second snapshot, got ids=%v removed=%v", got.MovieIDs, got.Removed)
		}
	})

	t.Run("empty_state", func(t *testing.T) {
		s := open(t)
		if err := s.Save(ctx, &State{Dimensions: 4, Metadata: map[int64]*models.MovieRecord{}}); err != nil {
			t.Fatal(err)
		}
		got, err := s.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got.Dimensions != 4 || len(got.Vectors) != 0 || len(got.MovieIDs) != 0 {
			t.Errorf("unexpected empty state: %+v", got)
		}
	})
}

func TestFileStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "snap"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestFileStore_WritesNamedFiles(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	if err := s.Save(context.Background(), sampleState()); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{indexFileName, metadataFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStore_CorruptIndex(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	if err := s.Save(context.Background(), sampleState()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, indexFileName), []byte{3, 0, 0, 0, 9, 0, 0, 0, 1}, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load(context.Background())
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestFileStore_InterruptedSaveKeepsOlderSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	ctx := context.Background()

	older := &State{
		Dimensions: 3,
		Vectors:    [][]float32{{1, 0, 0}},
		MovieIDs:   []int64{10},
		Metadata:   map[int64]*models.MovieRecord{10: record(10, "Dune")},
	}
	if err := s.Save(ctx, older); err != nil {
		t.Fatal(err)
	}
	olderMeta, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		t.Fatal(err)
	}
	newer := sampleState()
	newer.Removed = nil
	if err := s.Save(ctx, newer); err != nil {
		t.Fatal(err)
	}
	// The index rename landed but the metadata rename did not.
	if err := os.WriteFile(filepath.Join(dir, metadataFileName), olderMeta, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("loaded state invalid: %v", err)
	}
	if len(got.Vectors) != 1 || len(got.MovieIDs) != 1 || got.MovieIDs[0] != 10 {
		t.Errorf("expected the older snapshot, got ids=%v vectors=%d", got.MovieIDs, len(got.Vectors))
	}
	if got.Vectors[0][0] != 1 {
		t.Errorf("vector = %v", got.Vectors[0])
	}
}

func TestDecodeVectors_RejectsOversizedHeader(t *testing.T) {
	tests := map[string][]byte{
		"huge_count":        {0, 1, 0, 0, 0xff, 0xff, 0xff, 0xff},
		"huge_dimension":    {0xff, 0xff, 0xff, 0xff, 2, 0, 0, 0, 1, 2, 3, 4},
		"zero_dimension":    {0, 0, 0, 0, 0xff, 0xff, 0xff, 0x7f},
		"one_row_too_short": {2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0x80, 0x3f},
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := decodeVectorBytes(blob); err == nil {
				t.Error("expected error")
			}
		})
	}

	dims, vecs, err := decodeVectorBytes(encodeVectors(2, [][]float32{{1, 2}, {3, 4}}))
	if err != nil || dims != 2 || len(vecs) != 2 || vecs[1][1] != 4 {
		t.Errorf("valid blob = %d %v %v", dims, vecs, err)
	}
}

func TestBadgerStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, err := NewBadgerStore("")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadgerStore_LargeSnapshotIsChunked(t *testing.T) {
	s, err := NewBadgerStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const dims, n = 64, 5000 // ~1.3MB of vectors, more than one chunk
	state := &State{Dimensions: dims, Metadata: map[int64]*models.MovieRecord{}}
	for i := 0; i < n; i++ {
		v := make([]float32, dims)
		v[i%dims] = float32(i)
		state.Vectors = append(state.Vectors, v)
		state.MovieIDs = append(state.MovieIDs, int64(i))
		state.Metadata[int64(i)] = record(int64(i), "m")
	}
	if err := s.Save(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Vectors) != n || got.Vectors[n-1][(n-1)%dims] != float32(n-1) {
		t.Errorf("large snapshot did not round-trip")
	}
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	s, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), sampleState()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewBadgerStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.MovieIDs) != 2 {
		t.Errorf("movie ids after reopen = %v", got.MovieIDs)
	}
}

func TestState_Validate(t *testing.T) {
	s := sampleState()
	if err := s.Validate(); err != nil {
		t.Fatalf("valid state rejected: %v", err)
	}

	bad := sampleState()
	bad.MovieIDs = bad.MovieIDs[:1]
	if bad.Validate() == nil {
		t.Error("expected error for id/vector count mismatch")
	}

	bad = sampleState()
	bad.Vectors[0] = []float32{1}
	if bad.Validate() == nil {
		t.Error("expected error for wrong vector dimension")
	}

	bad = sampleState()
	delete(bad.Metadata, 10)
	if bad.Validate() == nil {
		t.Error("expected error for missing metadata")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(config.StorageConfig{SnapshotBackend: "file", SnapshotDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}

	s, err = Open(config.StorageConfig{SnapshotBackend: "badger", BadgerPath: filepath.Join(dir, "b")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*BadgerStore); !ok {
		t.Errorf("expected *BadgerStore, got %T", s)
	}

	if _, err := Open(config.StorageConfig{SnapshotBackend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
