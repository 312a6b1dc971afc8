package vector

import (
	"errors"
	"fmt"
)

// CodeStorage is the machine-readable code carried by StorageError.
const CodeStorage = "storage_error"

var (
	// ErrIncompatibleCollection is returned when an existing collection has a
	// different vector size or distance metric than configured.
	ErrIncompatibleCollection = errors.New("incompatible collection")

	// ErrNoCollection is returned when a driver is used before
	// EnsureCollection.
	ErrNoCollection = errors.New("collection not initialized")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)

// StorageError wraps a vector store failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Code returns CodeStorage.
func (e *StorageError) Code() string {
	return CodeStorage
}

// Wrap returns err as a *StorageError for op. A nil err stays nil, and an
// existing StorageError is returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Incompatible builds the StorageError for a config mismatch.
func Incompatible(existing, want CollectionConfig) error {
	return &StorageError{
		Op: "ensure_collection",
		Err: fmt.Errorf("%w: %q has size %d/%s, configured %d/%s",
			ErrIncompatibleCollection, want.Name,
			existing.VectorSize, existing.Distance,
			want.VectorSize, want.Distance),
	}
}
