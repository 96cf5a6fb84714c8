// Package session mirrors the runtime's in-memory session object into the
// host's persistent store.
//
// The runtime pulls the snapshot with [Bridge.Read] and pushes every change
// with [Bridge.Write] or [Bridge.Clear]. Those calls only touch the in-memory
// snapshot; a writer goroutine applies them to the [storage.Store] in order,
// coalescing to the latest value since writes replace the blob wholesale.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/stackbridge/storage"
)

// DefaultKey is the store key holding the session blob.
const DefaultKey = "blockstack_session"

// DefaultPersistTimeout bounds a single store operation.
const DefaultPersistTimeout = 10 * time.Second

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("session bridge closed")

// Option configures a Bridge.
type Option func(*Bridge)

// WithKey overrides the store key.
func WithKey(key string) Option {
	return func(b *Bridge) {
		b.key = key
	}
}

// WithLogger sets the logger for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithPersistTimeout bounds each store operation.
func WithPersistTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

type op struct {
	value []byte
	clear bool
	seq   uint64
}

// Bridge is safe for concurrent use.
type Bridge struct {
	store   storage.Store
	key     string
	logger  *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	snapshot  []byte
	present   bool
	next      *op
	seq       uint64
	persisted uint64
	err       error
	changed   chan struct{}
	closed    bool

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Bridge over store and starts its writer.
func New(store storage.Store, opts ...Option) *Bridge {
	b := &Bridge{
		store:   store,
		key:     DefaultKey,
		logger:  slog.Default(),
		timeout: DefaultPersistTimeout,
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.writer()
	return b
}

// Load primes the snapshot from the store. A stored blob that is not a JSON
// object is logged and treated as no session. Load never replaces a snapshot
// written after the bridge was created.
func (b *Bridge) Load(ctx context.Context) error {
	value, err := b.store.Get(ctx, b.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := State(value).Validate(); err != nil {
		b.logger.Warn("ignoring unreadable session blob", "key", b.key, "error", err)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seq == 0 {
		b.snapshot = value
		b.present = true
	}
	return nil
}

// Read returns the current snapshot, or false when there is no session.
func (b *Bridge) Read() (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.present {
		return nil, false
	}
	return State(append([]byte(nil), b.snapshot...)), true
}

// Write replaces the snapshot with state and schedules it for persistence.
func (b *Bridge) Write(state State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	value := append([]byte(nil), state...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.snapshot = value
	b.present = true
	b.enqueue(&op{value: value})
	return nil
}

// Clear drops the snapshot and schedules deletion from the store.
func (b *Bridge) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.snapshot = nil
	b.present = false
	b.enqueue(&op{clear: true})
	return nil
}

// Flush waits until every change enqueued before the call is persisted and
// returns the first persistence error since the previous Flush.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	target := b.seq
	for b.persisted < target {
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			b.mu.Lock()
			if b.persisted < target {
				b.mu.Unlock()
				return ErrClosed
			}
			continue
		}
		b.mu.Lock()
	}
	err := b.err
	b.err = nil
	b.mu.Unlock()
	return err
}

// Close persists outstanding changes and stops the writer. It does not close
// the underlying store.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stop)
	})
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.err
	b.err = nil
	return err
}

// enqueue must be called with mu held.
func (b *Bridge) enqueue(o *op) {
	b.seq++
	o.seq = b.seq
	b.next = o
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) writer() {
	defer close(b.done)
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.stop:
			b.drain()
			return
		}
	}
}

func (b *Bridge) drain() {
	for {
		b.mu.Lock()
		o := b.next
		b.next = nil
		b.mu.Unlock()
		if o == nil {
			return
		}

		err := b.apply(o)
		if err != nil {
			b.logger.Error("persist session failed", "key", b.key, "clear", o.clear, "error", err)
		}

		b.mu.Lock()
		if err != nil && b.err == nil {
			b.err = err
		}
		b.persisted = o.seq
		close(b.changed)
		b.changed = make(chan struct{})
		b.mu.Unlock()
	}
}

func (b *Bridge) apply(o *op) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if o.clear {
		return b.store.Delete(ctx, b.key)
	}
	return b.store.Put(ctx, b.key, o.value)
}
