package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/stackbridge/storage"
	"github.com/caffeineduck/stackbridge/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestMaxKeySize(t *testing.T) {
	s := New(WithMaxKeySize(10))

	err := s.Put(context.Background(), strings.Repeat("k", 20), []byte("v"))
	if err == nil || !strings.Contains(err.Error(), "key exceeds max size") {
		t.Errorf("expected key size error, got %v", err)
	}
	if err := s.Put(context.Background(), "short", []byte("v")); err != nil {
		t.Errorf("short key should be accepted: %v", err)
	}
}

func TestMaxValueSize(t *testing.T) {
	s := New(WithMaxValueSize(4))

	err := s.Put(context.Background(), "k", []byte("too long"))
	if err == nil || !strings.Contains(err.Error(), "value exceeds max size") {
		t.Errorf("expected value size error, got %v", err)
	}
}

func TestMaxEntries(t *testing.T) {
	s := New(WithMaxEntries(2))
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		if err := s.Put(ctx, k, []byte("v")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if err := s.Put(ctx, "c", []byte("v")); err == nil {
		t.Error("expected full store to reject new key")
	}
	if err := s.Put(ctx, "a", []byte("updated")); err != nil {
		t.Errorf("overwriting an existing key should succeed at capacity: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
}
