// Package cache persists raw best-server response documents on disk, one file
// per point, so that interrupted runs resume without repeating requests.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"rfcoverage/internal/types"
)

// Store is a per-network namespace directory of response documents.
// Entries are keyed by point ID and named "<id>.json".
type Store struct {
	dir     string
	minSize int64
}

// NewStore returns the store for network under root:
// <root>/<network>_best_signal.
func NewStore(root, network string) *Store {
	return &Store{
		dir:     filepath.Join(root, network+"_best_signal"),
		minSize: types.MinPlausibleResponseBytes,
	}
}

// Dir returns the namespace directory.
func (s *Store) Dir() string {
	return s.dir
}

// Ensure creates the namespace directory if absent.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalIO,
			fmt.Sprintf("failed to create cache directory %s", s.dir), err)
	}
	return nil
}

// Path returns the file path of the entry for id. The file may not exist.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Valid reports whether a usable entry exists for id: the file is present and
// larger than the plausibility threshold. Error stubs and truncated writes
// fail this check and are fetched again.
func (s *Store) Valid(id string) bool {
	fi, err := os.Stat(s.Path(id))
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Size() > s.minSize
}

// Lookup returns the cached document for id. ok is false when there is no
// valid entry; err is only set when a valid-looking entry cannot be read.
func (s *Store) Lookup(id string) (doc []byte, ok bool, err error) {
	if !s.Valid(id) {
		return nil, false, nil
	}
	doc, err = os.ReadFile(s.Path(id))
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeCacheUnreadable,
			fmt.Sprintf("failed to read cache entry %s", id), err)
	}
	return doc, true, nil
}

// Read returns whatever is stored for id regardless of size. A missing file
// yields a cache_document_missing error.
func (s *Store) Read(id string) ([]byte, error) {
	doc, err := os.ReadFile(s.Path(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, types.NewAppError(types.ErrCodeCacheMissing,
			fmt.Sprintf("no cache entry for %s", id), err)
	case err != nil:
		return nil, types.NewAppError(types.ErrCodeCacheUnreadable,
			fmt.Sprintf("failed to read cache entry %s", id), err)
	}
	return doc, nil
}

// Write stores doc for id, creating or truncating the file.
func (s *Store) Write(id string, doc []byte) error {
	if err := os.WriteFile(s.Path(id), doc, 0o644); err != nil {
		return types.NewAppError(types.ErrCodeCacheWrite,
			fmt.Sprintf("failed to write cache entry %s", id), err)
	}
	return nil
}

// Entries lists the IDs of every valid entry, sorted by file name.
func (s *Store) Entries() ([]string, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalIO, "failed to list cache directory", err)
	}
	var ids []string
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id := name[:len(name)-len(".json")]
		if s.Valid(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
