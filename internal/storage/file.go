package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON file per account under a directory. Writes go to a
// temporary file first and are renamed into place.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(account string) (string, error) {
	key := AccountKey(account)
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid account key %q", account)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Load reads the account's blob.
func (s *FileStore) Load(_ context.Context, account string) ([]byte, bool, error) {
	path, err := s.path(account)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat history: %w", err)
	}
	if stat.IsDir() {
		return nil, false, fmt.Errorf("history path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read history: %w", err)
	}
	return data, true, nil
}

// Save replaces the account's blob.
func (s *FileStore) Save(_ context.Context, account string, data []byte) error {
	path, err := s.path(account)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write history tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename history: %w", err)
	}
	return nil
}

// Delete removes the account's blob.
func (s *FileStore) Delete(_ context.Context, account string) error {
	path, err := s.path(account)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}
