// Package language defines the contract between the bridge host and an
// embedded script runtime.
package language

import (
	"errors"

	"github.com/caffeineduck/stackbridge/hostfunc"
)

// ErrInterrupted is wrapped by Eval and Call when Interrupt stopped the
// script.
var ErrInterrupted = errors.New("runtime interrupted")

// Script is a named source file evaluated into the runtime's global scope.
type Script struct {
	Name   string
	Source string
}

// Runtime is a single-threaded script engine. Only Interrupt may be called
// from a goroutine other than the one driving the runtime.
type Runtime interface {
	// Name identifies the engine in logs, e.g. "javascript".
	Name() string

	// Bind exposes every function in reg as a method of a global object
	// called name. Each method takes one object argument.
	Bind(name string, reg *hostfunc.Registry) error

	// Shims returns the scripts that must run after Bind and before any
	// bundle, in order.
	Shims() []Script

	Eval(s Script) error

	// Call invokes the function at a dotted global path such as
	// "blockstack.getFile" with this bound to its parent object.
	Call(path string, args ...any) (any, error)

	// Interrupt aborts the running script. ClearInterrupt re-arms the
	// runtime afterwards.
	Interrupt(reason string)
	ClearInterrupt()

	Close() error
}

// ScriptError is an exception thrown by script code and not caught there.
type ScriptError struct {
	Message string
	Err     error
}

func (e *ScriptError) Error() string { return e.Message }

func (e *ScriptError) Unwrap() error { return e.Err }
