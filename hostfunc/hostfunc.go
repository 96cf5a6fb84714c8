package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrSealed is returned when registering into a sealed registry.
	ErrSealed = errors.New("registry is sealed")
	// ErrUnknownFunc is returned by Call for an unregistered name.
	ErrUnknownFunc = errors.New("unknown host function")
)

type Func func(ctx context.Context, args map[string]any) (any, error)

// Middleware wraps a Func. The name is the registered function name.
type Middleware func(name string, next Func) Func

// Registry holds the capability set exposed to the runtime. Once sealed it
// is read-only.
type Registry struct {
	mu         sync.RWMutex
	funcs      map[string]Func
	middleware []Middleware
	sealed     bool
}

// NewRegistry creates a registry. Middleware runs in the given order, first
// outermost, around every function registered afterwards.
func NewRegistry(mw ...Middleware) *Registry {
	return &Registry{
		funcs:      make(map[string]Func),
		middleware: mw,
	}
}

// Register adds fn under name. Empty and duplicate names are rejected.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("host function name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("host function %q is nil", name)
	}

	wrapped := fn
	for i := len(r.middleware) - 1; i >= 0; i-- {
		wrapped = r.middleware[i](name, wrapped)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %q: %w", name, ErrSealed)
	}
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("duplicate host function name: %q", name)
	}
	r.funcs[name] = wrapped
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// Call invokes the function registered under name.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunc, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return fn(ctx, args)
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
