package storage

import (
	"context"
	"errors"
)

// Fixed keys under which the session is persisted.
const (
	KeyUser  = "user"
	KeyToken = "token"
)

var ErrEmptyKey = errors.New("storage key must not be empty")

// Store is durable key/value storage for client state.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put writes all entries atomically.
	Put(ctx context.Context, entries map[string]string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}
