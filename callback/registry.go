// Package callback correlates asynchronous replies from the embedded runtime
// with the native continuation that issued the operation.
//
// Each registration mints an opaque token. The token travels into the runtime
// with the call and comes back with the reply. [Registry.Resolve] removes the
// entry and invokes its continuation outside the lock, so a token is consumed
// at most once and a continuation may re-enter the registry.
package callback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/caffeineduck/stackbridge/envelope"
)

// Continuation receives the single reply for a registration.
type Continuation[T any] func(envelope.Result[T])

// Option configures a Registry.
type Option func(*config)

type config struct {
	name   string
	logger *slog.Logger
	mint   func() string
}

// WithName labels the registry in log output.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger used for dropped replies.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMintFunc replaces the token generator.
func WithMintFunc(mint func() string) Option {
	return func(c *config) {
		c.mint = mint
	}
}

// Registry maps tokens to pending continuations. The zero value is not usable;
// create one with New.
type Registry[T any] struct {
	mu      sync.Mutex
	pending map[string]Continuation[T]
	cfg     config
	onDrop  func(token string)
}

// New creates an empty registry.
func New[T any](opts ...Option) *Registry[T] {
	cfg := config{
		name:   "callback",
		logger: slog.Default(),
		mint:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry[T]{
		pending: make(map[string]Continuation[T]),
		cfg:     cfg,
	}
}

// OnDrop installs a hook called for every reply with an unknown or
// already-consumed token.
func (r *Registry[T]) OnDrop(fn func(token string)) {
	r.mu.Lock()
	r.onDrop = fn
	r.mu.Unlock()
}

// maxMintAttempts bounds how many empty or colliding tokens Register
// tolerates from the mint function.
const maxMintAttempts = 16

// Register stores cont under a fresh token and returns the token. It panics
// if the mint function yields no usable token in maxMintAttempts tries.
func (r *Registry[T]) Register(cont Continuation[T]) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range maxMintAttempts {
		token := r.cfg.mint()
		if _, taken := r.pending[token]; taken || token == "" {
			continue
		}
		r.pending[token] = cont
		return token
	}
	panic(fmt.Sprintf("callback %s: no unique token after %d attempts", r.cfg.name, maxMintAttempts))
}

// Resolve delivers res to the continuation registered under token and
// reports whether one was found. Unknown or consumed tokens are logged and
// dropped.
func (r *Registry[T]) Resolve(token string, res envelope.Result[T]) bool {
	cont, ok := r.take(token)
	if !ok {
		r.dropped(token)
		return false
	}
	cont(res)
	return true
}

// Cancel removes the registration for token without invoking it. A later
// Resolve for the same token is a no-op.
func (r *Registry[T]) Cancel(token string) bool {
	_, ok := r.take(token)
	return ok
}

// CancelAll fails every pending continuation with msg and returns how many
// were notified.
func (r *Registry[T]) CancelAll(msg string) int {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]Continuation[T])
	r.mu.Unlock()

	for _, cont := range pending {
		cont(envelope.Fail[T](msg))
	}
	return len(pending)
}

// Len returns the number of pending registrations.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry[T]) take(token string) (Continuation[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cont, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
	}
	return cont, ok
}

func (r *Registry[T]) dropped(token string) {
	r.cfg.logger.Warn("dropping reply for unknown token",
		"registry", r.cfg.name,
		"token", token,
	)
	r.mu.Lock()
	hook := r.onDrop
	r.mu.Unlock()
	if hook != nil {
		hook(token)
	}
}
