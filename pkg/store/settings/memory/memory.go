// Package memory is a non-persistent settings.Store. Saved settings
// live until the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/gpibgate/pkg/store/settings"
)

type Store struct {
	mu   sync.RWMutex
	data map[string]settings.BusSettings
}

func New() *Store {
	return &Store{data: make(map[string]settings.BusSettings)}
}

func (s *Store) Get(ctx context.Context, key string) (settings.BusSettings, error) {
	if err := ctx.Err(); err != nil {
		return settings.BusSettings{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return settings.BusSettings{}, settings.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, key string, v settings.BusSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Close() error {
	return nil
}

var _ settings.Store = (*Store)(nil)
