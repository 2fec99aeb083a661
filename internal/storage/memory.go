package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process AccountStore.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, account string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[AccountKey(account)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryStore) Save(_ context.Context, account string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[AccountKey(account)] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, AccountKey(account))
	return nil
}
