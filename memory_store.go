package authclient

import (
	"context"
	"sync"
)

// MemoryCredentialStore keeps credentials in process memory. Useful for
// tests and for short lived tools that should not write to disk.
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ CredentialStore = &MemoryCredentialStore{}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{values: map[string]string{}}
}

func (s *MemoryCredentialStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewStorageError(err, "get")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

func (s *MemoryCredentialStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError(err, "set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryCredentialStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError(err, "remove")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError(err, "clear")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]string{}
	return nil
}
