package snapshot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	indexFileName    = "movie_embeddings.index"
	metadataFileName = "movie_vector_store.json"
)

// FileStore keeps a snapshot as two files in one directory: the binary
// vector index and a JSON metadata document. Each file is written to a temp
// file and renamed into place; the metadata file is renamed last. The index
// only grows between saves, so an interrupted Save leaves a newer index whose
// leading rows match the older metadata. Load trims the index back to the
// ordinals the metadata describes.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes both files.
func (s *FileStore) Save(ctx context.Context, state *State) error {
	meta, err := encodeMetadata(state)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.dir, indexFileName), encodeVectors(state.Dimensions, state.Vectors)); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, metadataFileName), meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Load reads both files. A missing metadata or index file means no snapshot.
func (s *FileStore) Load(ctx context.Context) (*State, error) {
	meta, err := os.ReadFile(filepath.Join(s.dir, metadataFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	f, err := os.Open(filepath.Join(s.dir, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}

	state := &State{}
	if state.Dimensions, state.Vectors, err = decodeVectors(bufio.NewReader(f), info.Size()); err != nil {
		return nil, err
	}
	if err := decodeMetadata(meta, state); err != nil {
		return nil, err
	}
	if len(state.Vectors) > len(state.MovieIDs) {
		state.Vectors = state.Vectors[:len(state.MovieIDs)]
	}
	return state, nil
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
