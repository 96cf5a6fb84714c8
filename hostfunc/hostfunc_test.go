package hostfunc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRegistryRegisterAndCall(t *testing.T) {
	r := NewRegistry()
	err := r.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["v"], nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Call(context.Background(), "echo", map[string]any{"v": "hi"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "hi" {
		t.Errorf("expected hi, got %v", got)
	}
}

func TestRegistryRejectsDuplicateAndEmpty(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }

	if err := r.Register("", noop); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("a", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("a", noop); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
	if err := r.Register("nil", nil); err == nil {
		t.Error("expected error for nil func")
	}
}

func TestRegistrySeal(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	r.Register("a", noop)
	r.Seal()

	if !r.Sealed() {
		t.Fatal("expected sealed registry")
	}
	if err := r.Register("b", noop); !errors.Is(err, ErrSealed) {
		t.Errorf("expected ErrSealed, got %v", err)
	}
	if _, ok := r.Get("a"); !ok {
		t.Error("sealed registry should keep existing functions")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	for _, n := range []string{"zeta", "alpha", "mid"} {
		r.Register(n, noop)
	}
	got := strings.Join(r.List(), ",")
	if got != "alpha,mid,zeta" {
		t.Errorf("expected sorted names, got %s", got)
	}
}

func TestCallUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Call(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownFunc) {
		t.Errorf("expected ErrUnknownFunc, got %v", err)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var trace []string
	mark := func(tag string) Middleware {
		return func(name string, next Func) Func {
			return func(ctx context.Context, args map[string]any) (any, error) {
				trace = append(trace, tag+":"+name)
				return next(ctx, args)
			}
		}
	}
	r := NewRegistry(mark("outer"), mark("inner"))
	r.Register("f", func(ctx context.Context, args map[string]any) (any, error) {
		trace = append(trace, "f")
		return nil, nil
	})
	r.Call(context.Background(), "f", nil)

	if got := strings.Join(trace, " "); got != "outer:f inner:f f" {
		t.Errorf("unexpected middleware order: %s", got)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	r := NewRegistry(Recover())
	r.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		panic("kaboom")
	})
	_, err := r.Call(context.Background(), "boom", nil)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("expected panic converted to error, got %v", err)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewRegistry(Logging(logger))
	r.Register("ok", func(ctx context.Context, args map[string]any) (any, error) { return nil, nil })
	r.Register("bad", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("nope")
	})

	r.Call(context.Background(), "ok", nil)
	r.Call(context.Background(), "bad", nil)

	out := buf.String()
	if !strings.Contains(out, "func=ok") || !strings.Contains(out, "level=DEBUG") {
		t.Errorf("expected debug record for ok, got %s", out)
	}
	if !strings.Contains(out, "func=bad") || !strings.Contains(out, "error=nope") {
		t.Errorf("expected warning for bad, got %s", out)
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fn := Console(logger)

	tests := []struct {
		level string
		want  string
	}{
		{"debug", "level=DEBUG"},
		{"log", "level=INFO"},
		{"warn", "level=WARN"},
		{"error", "level=ERROR"},
	}
	for _, tt := range tests {
		buf.Reset()
		if _, err := fn(context.Background(), map[string]any{"level": tt.level, "message": "hello"}); err != nil {
			t.Fatalf("console %s: %v", tt.level, err)
		}
		out := buf.String()
		if !strings.Contains(out, tt.want) || !strings.Contains(out, "source=runtime") {
			t.Errorf("level %s: expected %s with source=runtime, got %s", tt.level, tt.want, out)
		}
	}

	if _, err := fn(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error without message")
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":       "x",
		"n":       1,
		"b":       true,
		"headers": map[string]any{"A": "1"},
		"bad":     map[string]any{"A": 1},
	}
	if s, err := String(args, "s"); err != nil || s != "x" {
		t.Errorf("String: %q %v", s, err)
	}
	if _, err := String(args, "missing"); err == nil || err.Error() != "missing required" {
		t.Errorf("expected 'missing required', got %v", err)
	}
	if _, err := String(args, "n"); err == nil {
		t.Error("expected type error")
	}
	if s, err := OptString(args, "missing"); err != nil || s != "" {
		t.Errorf("OptString: %q %v", s, err)
	}
	if b, err := Bool(args, "b"); err != nil || !b {
		t.Errorf("Bool: %v %v", b, err)
	}
	if m, err := StringMap(args, "headers"); err != nil || m["A"] != "1" {
		t.Errorf("StringMap: %v %v", m, err)
	}
	if _, err := StringMap(args, "bad"); err == nil {
		t.Error("expected StringMap type error")
	}
}
