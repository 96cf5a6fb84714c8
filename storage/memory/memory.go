// Package memory provides an in-process storage.Store.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/caffeineduck/stackbridge/storage"
)

const (
	DefaultMaxKeySize   = 256
	DefaultMaxValueSize = 1 << 20 // 1MB
	DefaultMaxEntries   = 1000
)

// Option configures a Store.
type Option func(*Store)

// WithMaxKeySize sets the maximum key length in bytes.
func WithMaxKeySize(n int) Option {
	return func(s *Store) {
		s.maxKeySize = n
	}
}

// WithMaxValueSize sets the maximum value size in bytes.
func WithMaxValueSize(n int) Option {
	return func(s *Store) {
		s.maxValueSize = n
	}
}

// WithMaxEntries caps the number of stored keys.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		s.maxEntries = n
	}
}

// Store keeps values in a map guarded by a RWMutex.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex

	maxKeySize   int
	maxValueSize int
	maxEntries   int
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		data:         make(map[string][]byte),
		maxKeySize:   DefaultMaxKeySize,
		maxValueSize: DefaultMaxValueSize,
		maxEntries:   DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx, key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), val...), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	if len(value) > s.maxValueSize {
		return fmt.Errorf("value exceeds max size (%d bytes)", s.maxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxEntries {
		return fmt.Errorf("store is full (%d entries)", s.maxEntries)
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.data == nil {
		return storage.ErrNotConfigured
	}
	if strings.TrimSpace(key) == "" {
		return storage.ErrKeyRequired
	}
	if len(key) > s.maxKeySize {
		return fmt.Errorf("key exceeds max size (%d bytes)", s.maxKeySize)
	}
	return nil
}
