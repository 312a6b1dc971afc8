package storage

import "errors"

// CodeNotFound is the machine-readable code carried by NotFoundError.
const CodeNotFound = "not_found"

// NotFoundError is returned when a function doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "function not found"
	}

	return "function not found: " + e.ID
}

// Code returns CodeNotFound.
func (e NotFoundError) Code() string {
	return CodeNotFound
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
