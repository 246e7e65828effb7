// Package localfs persists the cache blob as a single file on disk.
package localfs

import (
	"fmt"
	"os"
	"path/filepath"
)

type Store struct {
	path string
}

// New creates the parent directory and returns a file-backed blob store.
func New(path string) (*Store, error) {
	if path == "" {
		path = "./data/artifact-cache.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{path: path}, nil
}

// ReadBlob returns the stored blob, or ok=false when none exists yet.
func (s *Store) ReadBlob() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read cache blob: %w", err)
	}
	return string(data), true, nil
}

// WriteBlob replaces the stored blob in full.
func (s *Store) WriteBlob(blob string) error {
	if err := os.WriteFile(s.path, []byte(blob), 0o644); err != nil {
		return fmt.Errorf("write cache blob: %w", err)
	}
	return nil
}
