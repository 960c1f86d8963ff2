package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/lorrc/accounts/internal/core/ports"
)

// Store is an in-process ports.DataStore keyed by reference path.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]map[string]any
}

var _ ports.DataStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{nodes: make(map[string]map[string]any)}
}

func (s *Store) SetValue(ctx context.Context, ref ports.Reference, value map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[ref.Key()] = maps.Clone(value)
	return nil
}

// GetData returns a copy of the node at ref, or nil.
func (s *Store) GetData(ctx context.Context, ref ports.Reference) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[ref.Key()]
	if !ok {
		return nil, nil
	}
	return maps.Clone(node), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}
