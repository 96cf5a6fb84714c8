// Package javascript implements language.Runtime on the goja engine.
package javascript

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/language"
)

//go:embed shim/*.js
var shimFS embed.FS

// shimOrder is the evaluation order: console first so later shims can log.
var shimOrder = []string{"prelude.js", "sessionstore.js", "fetch.js"}

var errClosed = errors.New("javascript runtime closed")

type Option func(*Runtime)

// WithContext sets the context passed to host functions.
func WithContext(ctx context.Context) Option {
	return func(r *Runtime) {
		r.ctx = ctx
	}
}

// WithMaxCallStackSize bounds script recursion.
func WithMaxCallStackSize(n int) Option {
	return func(r *Runtime) {
		r.vm.SetMaxCallStackSize(n)
	}
}

// Runtime is not safe for concurrent use, except Interrupt.
type Runtime struct {
	vm     *goja.Runtime
	ctx    context.Context
	closed bool
}

var _ language.Runtime = (*Runtime)(nil)

func New(opts ...Option) *Runtime {
	r := &Runtime{
		vm:  goja.New(),
		ctx: context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns "javascript".
func (r *Runtime) Name() string {
	return "javascript"
}

func (r *Runtime) Bind(name string, reg *hostfunc.Registry) error {
	if r.closed {
		return errClosed
	}
	obj := r.vm.NewObject()
	for _, fname := range reg.List() {
		fn, _ := reg.Get(fname)
		if err := obj.Set(fname, r.wrap(fname, fn)); err != nil {
			return fmt.Errorf("bind %s.%s: %w", name, fname, err)
		}
	}
	return r.vm.Set(name, obj)
}

// wrap adapts a host function to a JS method. Go errors become thrown
// exceptions.
func (r *Runtime) wrap(name string, fn hostfunc.Func) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := map[string]any{}
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			m, ok := arg.Export().(map[string]any)
			if !ok {
				panic(r.vm.NewTypeError("%s expects an object argument", name))
			}
			args = m
		}
		res, err := fn(r.ctx, args)
		if err != nil {
			panic(r.vm.NewGoError(err))
		}
		if res == nil {
			return goja.Null()
		}
		return r.vm.ToValue(res)
	}
}

func (r *Runtime) Shims() []language.Script {
	scripts := make([]language.Script, 0, len(shimOrder))
	for _, name := range shimOrder {
		src, err := shimFS.ReadFile("shim/" + name)
		if err != nil {
			panic(fmt.Sprintf("missing embedded shim %s", name))
		}
		scripts = append(scripts, language.Script{Name: name, Source: string(src)})
	}
	return scripts
}

func (r *Runtime) Eval(s language.Script) error {
	if r.closed {
		return errClosed
	}
	if _, err := r.vm.RunScript(s.Name, s.Source); err != nil {
		return fmt.Errorf("eval %s: %w", s.Name, convertError(err))
	}
	return nil
}

func (r *Runtime) Call(path string, args ...any) (any, error) {
	if r.closed {
		return nil, errClosed
	}
	fn, this, err := r.resolve(path)
	if err != nil {
		return nil, err
	}

	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = r.vm.ToValue(a)
	}
	res, err := fn(this, vals...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, convertError(err))
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, nil
	}
	return res.Export(), nil
}

func (r *Runtime) resolve(path string) (goja.Callable, goja.Value, error) {
	parts := strings.Split(path, ".")
	var this goja.Value = r.vm.GlobalObject()
	cur := this
	for i, part := range parts {
		if goja.IsUndefined(cur) || goja.IsNull(cur) {
			return nil, nil, fmt.Errorf("%s: %s is not defined", path, strings.Join(parts[:i], "."))
		}
		this = cur
		cur = cur.ToObject(r.vm).Get(part)
		if cur == nil {
			cur = goja.Undefined()
		}
	}
	fn, ok := goja.AssertFunction(cur)
	if !ok {
		return nil, nil, fmt.Errorf("%s is not a function", path)
	}
	return fn, this, nil
}

func (r *Runtime) Interrupt(reason string) {
	r.vm.Interrupt(reason)
}

func (r *Runtime) ClearInterrupt() {
	r.vm.ClearInterrupt()
}

func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.vm.Interrupt("closed")
	return nil
}

func convertError(err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return fmt.Errorf("%w: %v", language.ErrInterrupted, ie.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &language.ScriptError{Message: exceptionMessage(ex), Err: ex}
	}
	return err
}

// exceptionMessage prefers the thrown object's message over the full
// stack-bearing string.
func exceptionMessage(ex *goja.Exception) string {
	v := ex.Value()
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && m.String() != "" {
			return m.String()
		}
	}
	if v == nil {
		return ex.Error()
	}
	return v.String()
}
