package snapshot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	currentKey     = "snapshot:current"
	generationPref = "snapshot:gen:"
	chunkSize      = 1 << 20
)

// BadgerStore keeps snapshots in BadgerDB. Each Save writes a new generation
// (metadata plus the vector blob split into chunks) through a WriteBatch and
// then flips snapshot:current to it, so readers never see a half-written
// generation. The previous generation is deleted afterwards.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a store at path; an empty path opens an in-memory store.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger snapshot store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func genPrefix(gen uint64) string {
	return fmt.Sprintf("%s%020d:", generationPref, gen)
}

func chunkKey(gen uint64, i int) []byte {
	return []byte(fmt.Sprintf("%svectors:%06d", genPrefix(gen), i))
}

func metaKey(gen uint64) []byte {
	return []byte(genPrefix(gen) + "meta")
}

// Save writes state as a new generation and makes it current.
func (s *BadgerStore) Save(ctx context.Context, state *State) error {
	meta, err := encodeMetadata(state)
	if err != nil {
		return err
	}
	blob := encodeVectors(state.Dimensions, state.Vectors)

	prev, prevChunks, hasPrev, err := s.readPointer()
	if err != nil {
		return err
	}
	gen := uint64(time.Now().UnixNano())
	if hasPrev && gen <= prev {
		gen = prev + 1
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Set(metaKey(gen), meta); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}
	chunks := 0
	for off := 0; off < len(blob); off += chunkSize {
		end := off + chunkSize
		if end > len(blob) {
			end = len(blob)
		}
		if err := wb.Set(chunkKey(gen, chunks), blob[off:end]); err != nil {
			return fmt.Errorf("write snapshot chunk %d: %w", chunks, err)
		}
		chunks++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush snapshot generation: %w", err)
	}

	var pointer [12]byte
	binary.BigEndian.PutUint64(pointer[0:8], gen)
	binary.BigEndian.PutUint32(pointer[8:12], uint32(chunks))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(currentKey), pointer[:])
	}); err != nil {
		return fmt.Errorf("commit snapshot generation: %w", err)
	}

	if hasPrev {
		if err := s.deleteGeneration(prev, prevChunks); err != nil {
			return fmt.Errorf("delete previous snapshot generation: %w", err)
		}
	}
	return nil
}

func (s *BadgerStore) deleteGeneration(gen uint64, chunks int) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Delete(metaKey(gen)); err != nil {
		return err
	}
	for i := 0; i < chunks; i++ {
		if err := wb.Delete(chunkKey(gen, i)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) readPointer() (gen uint64, chunks int, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 12 {
				return fmt.Errorf("malformed snapshot pointer (%d bytes)", len(val))
			}
			gen = binary.BigEndian.Uint64(val[0:8])
			chunks = int(binary.BigEndian.Uint32(val[8:12]))
			ok = true
			return nil
		})
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("read snapshot pointer: %w", err)
	}
	return gen, chunks, ok, nil
}

// Load reads the current generation.
func (s *BadgerStore) Load(ctx context.Context) (*State, error) {
	gen, chunks, ok, err := s.readPointer()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	var meta, blob []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(gen))
		if err != nil {
			return fmt.Errorf("get snapshot metadata: %w", err)
		}
		if meta, err = item.ValueCopy(nil); err != nil {
			return err
		}
		for i := 0; i < chunks; i++ {
			item, err := txn.Get(chunkKey(gen, i))
			if err != nil {
				return fmt.Errorf("get snapshot chunk %d: %w", i, err)
			}
			if err := item.Value(func(val []byte) error {
				blob = append(blob, val...)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	state := &State{}
	if state.Dimensions, state.Vectors, err = decodeVectorBytes(blob); err != nil {
		return nil, err
	}
	if err := decodeMetadata(meta, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
