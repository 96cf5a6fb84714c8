package bridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/language"
)

// mockRuntime implements language.Runtime for testing host logic without a
// script engine. Calls are answered by handlers keyed on the entry name.
type mockRuntime struct {
	mu       sync.Mutex
	events   []string
	reg      *hostfunc.Registry
	handlers map[string]func(args []any) (any, error)

	bindErr error
	evalErr map[string]error

	interrupts chan string
	closed     bool
}

func newMockRuntime() *mockRuntime {
	return &mockRuntime{
		handlers:   make(map[string]func([]any) (any, error)),
		evalErr:    make(map[string]error),
		interrupts: make(chan string, 4),
	}
}

func (m *mockRuntime) Name() string {
	return "mock"
}

func (m *mockRuntime) record(ev string) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *mockRuntime) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *mockRuntime) Bind(name string, reg *hostfunc.Registry) error {
	m.record("bind:" + name)
	if m.bindErr != nil {
		return m.bindErr
	}
	m.mu.Lock()
	m.reg = reg
	m.mu.Unlock()
	return nil
}

func (m *mockRuntime) Shims() []language.Script {
	return []language.Script{
		{Name: "shim-a.js", Source: "a"},
		{Name: "shim-b.js", Source: "b"},
	}
}

func (m *mockRuntime) Eval(s language.Script) error {
	m.record("eval:" + s.Name)
	return m.evalErr[s.Name]
}

// Handle answers calls to the entry point fn ("getFile", not
// "blockstack.getFile").
func (m *mockRuntime) Handle(fn string, h func(args []any) (any, error)) {
	m.mu.Lock()
	m.handlers[fn] = h
	m.mu.Unlock()
}

func (m *mockRuntime) Call(path string, args ...any) (any, error) {
	m.record("call:" + path)
	fn := path[strings.LastIndex(path, ".")+1:]
	m.mu.Lock()
	h, ok := m.handlers[fn]
	m.mu.Unlock()
	if !ok {
		if fn == "newSession" {
			return true, nil
		}
		return nil, fmt.Errorf("%s is not a function", path)
	}
	return h(args)
}

func (m *mockRuntime) Interrupt(reason string) {
	m.interrupts <- reason
}

func (m *mockRuntime) ClearInterrupt() {}

func (m *mockRuntime) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockRuntime) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Registry returns the capability set bound by Init.
func (m *mockRuntime) Registry() *hostfunc.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg
}
