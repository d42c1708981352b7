// Package memory provides an in-process SnapshotStore. Nothing survives a
// restart; it backs tests and the "memory" storage driver.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/jsamuelsen/quotesync/internal/domain"
)

// Store keeps values in a map. Saved and loaded slices are copied.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save stores a copy of data under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = slices.Clone(data)

	return nil
}

// Load returns a copy of the value under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, domain.NewNotFoundError("snapshot", key)
	}

	return slices.Clone(data), nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

// Check implements ports.HealthChecker. The store is always healthy.
func (s *Store) Check(context.Context) error {
	return nil
}
