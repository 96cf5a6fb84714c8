// Package storagetest holds behavior tests shared by every storage.Store
// implementation.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/caffeineduck/stackbridge/storage"
)

// Run exercises the Store contract against stores produced by open.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if err := s.Put(ctx, "session", []byte(`{"a":1}`)); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := s.Get(ctx, "session")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !bytes.Equal(got, []byte(`{"a":1}`)) {
			t.Fatalf("expected stored value, got %q", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, v := range []string{"one", "two", "three"} {
			if err := s.Put(ctx, "k", []byte(v)); err != nil {
				t.Fatalf("put %s: %v", v, err)
			}
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got) != "three" {
			t.Fatalf("expected last write to win, got %q", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if err := s.Put(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatalf("deleting a missing key should succeed, got %v", err)
		}
	})

	t.Run("ValueIsCopied", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		buf := []byte("original")
		if err := s.Put(ctx, "k", buf); err != nil {
			t.Fatalf("put: %v", err)
		}
		copy(buf, "mutated!")
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got) != "original" {
			t.Fatalf("store must not alias caller buffers, got %q", got)
		}
	})

	t.Run("EmptyKey", func(t *testing.T) {
		s := open(t)
		if err := s.Put(context.Background(), "", []byte("v")); !errors.Is(err, storage.ErrKeyRequired) {
			t.Fatalf("expected ErrKeyRequired, got %v", err)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.Put(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
