package kv

import "errors"

var (
	// ErrNotFound is returned by scalar getters when the key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrTypeMismatch is returned when a key holds a value of another kind.
	ErrTypeMismatch = errors.New("value has a different type")

	// ErrEmptyKey is returned when an operation receives an empty key.
	ErrEmptyKey = errors.New("empty key")

	// ErrClosed is returned by stores that have been closed.
	ErrClosed = errors.New("store is closed")
)
