// Package storage defines the key/value persistence contract used by the
// session bridge.
//
// Implementations live in subpackages: memory for ephemeral use, bbolt and
// sqlite for durable stores.
//
// # Error Types
//
//   - ErrNotFound: the key has no value.
//   - ErrNotConfigured: the store was used without being opened.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a requested key is missing.
	ErrNotFound = errors.New("record not found")
	// ErrNotConfigured indicates a nil or closed store.
	ErrNotConfigured = errors.New("storage is not configured")
	// ErrKeyRequired indicates an empty key.
	ErrKeyRequired = errors.New("key is required")
)

// Store persists opaque blobs by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
