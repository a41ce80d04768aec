// Package storage defines the durable key-value boundary used by the
// offline queue and the response cache.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key doesn't exist
	ErrNotFound = errors.New("key not found")
)

// Store is a durable key-value persistence service.
type Store interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error
	Remove(ctx context.Context, key string) error

	// Clear deletes every key owned by the store
	Clear(ctx context.Context) error

	// ListKeys returns the keys starting with prefix in ascending order
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying connection
	Close() error
}
