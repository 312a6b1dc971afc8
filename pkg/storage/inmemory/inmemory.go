// Package inmemory provides a map-backed storage driver.
package inmemory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of functions
	mu sync.RWMutex

	// functions is keyed by function ID. Values are private clones, so
	// callers never share memory with the store.
	functions map[string]*function.Function
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		functions: make(map[string]*function.Function),
	}
}

// Put inserts or replaces a function.
func (s *Driver) Put(_ context.Context, f *function.Function) error {
	if f == nil || f.ID == "" {
		return errors.New("cannot store function without an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.functions[f.ID] = f.Clone()
	return nil
}

// Get retrieves a function by its ID.
func (s *Driver) Get(_ context.Context, id string) (*function.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.functions[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return f.Clone(), nil
}

// Delete removes a function by its ID.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.functions[id]; !ok {
		return storage.NotFoundError{ID: id}
	}
	delete(s.functions, id)
	return nil
}

// List returns all functions ordered by name, then ID.
func (s *Driver) List(_ context.Context) ([]*function.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*function.Function, 0, len(s.functions))
	for _, f := range s.functions {
		out = append(out, f.Clone())
	}
	slices.SortFunc(out, func(a, b *function.Function) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return out, nil
}

// Count returns the number of stored functions.
func (s *Driver) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.functions), nil
}

// Clear removes every function.
func (s *Driver) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.functions = make(map[string]*function.Function)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
