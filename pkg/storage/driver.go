// Package storage persists canonical function records. Vector stores hold
// only projections of these records and can be rebuilt from them.
package storage

import (
	"context"

	"github.com/papercomputeco/fnindex/pkg/function"
)

// Driver defines the interface for persisting and retrieving function
// records in a storage backend.
type Driver interface {
	// Put inserts or replaces a function by its ID.
	Put(ctx context.Context, f *function.Function) error

	// Get retrieves a function by its ID. Returns NotFoundError if absent.
	Get(ctx context.Context, id string) (*function.Function, error)

	// Delete removes a function by its ID. Returns NotFoundError if absent.
	Delete(ctx context.Context, id string) error

	// List returns all functions ordered by name, then ID.
	List(ctx context.Context) ([]*function.Function, error)

	// Count returns the number of stored functions.
	Count(ctx context.Context) (int, error)

	// Clear removes every function.
	Clear(ctx context.Context) error

	// Close closes the store and releases any resources.
	Close() error
}
