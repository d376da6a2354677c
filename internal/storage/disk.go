package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Footprint reports the bytes used on disk by the database file, its WAL
// sidecars and the snapshot directory, as shown by `reelrank status`.
type Footprint struct {
	Database  int64 `json:"database_bytes"`
	Snapshots int64 `json:"snapshot_bytes"`
}

// Total returns the sum of all parts.
func (f Footprint) Total() int64 {
	return f.Database + f.Snapshots
}

// MeasureFootprint sizes the database at dbPath and the snapshot location.
// Missing paths count as zero.
func MeasureFootprint(dbPath, snapshotPath string) (Footprint, error) {
	var fp Footprint
	var err error
	if dbPath != "" && dbPath != ":memory:" {
		if fp.Database, err = pathSize(dbPath, dbPath+"-wal", dbPath+"-shm"); err != nil {
			return fp, err
		}
	}
	fp.Snapshots, err = pathSize(snapshotPath)
	return fp, err
}

// pathSize sums regular file sizes under each path, recursing into directories.
func pathSize(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
