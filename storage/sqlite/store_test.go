package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/stackbridge/storage"
	"github.com/caffeineduck/stackbridge/storage/storagetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "bridge.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTestStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Put(context.Background(), "session", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"v":1}` {
		t.Fatalf("expected persisted value, got %q", got)
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	base := errors.New("disk on fire")
	if got := classify(base); got != base {
		t.Fatalf("expected error unchanged, got %v", got)
	}
}
