// Package envelope provides the success/error carrier that crosses the
// host/runtime boundary.
//
// A [Result] holds exactly one of a value or an error message. A successful
// reply with nothing to say carries [Done] rather than omitting both arms.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed reports a wire envelope that does not carry exactly one arm.
var ErrMalformed = errors.New("malformed envelope")

// Empty is the value type for replies that succeed without a payload.
type Empty struct{}

// Done is the non-null sentinel for a successful-but-empty reply.
var Done = Empty{}

// Error is the error arm of a Result.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Result is the outcome of one bridged operation.
type Result[T any] struct {
	value T
	err   *Error
}

// Ok returns a Result carrying v.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail returns a Result carrying an error message. An empty message is
// replaced so the error arm is never blank.
func Fail[T any](msg string) Result[T] {
	if msg == "" {
		msg = "unknown error"
	}
	return Result[T]{err: &Error{Message: msg}}
}

// Failf is Fail with formatting.
func Failf[T any](format string, args ...any) Result[T] {
	return Fail[T](fmt.Sprintf(format, args...))
}

// HasValue reports whether r carries a value.
func (r Result[T]) HasValue() bool { return r.err == nil }

// Value returns the value and whether it is present.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.err == nil
}

// Err returns the error arm, or nil when r carries a value.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Get unpacks r into the usual Go pair.
func (r Result[T]) Get() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}

func (r Result[T]) String() string {
	if r.err != nil {
		return fmt.Sprintf("Result{error: %q}", r.err.Message)
	}
	return fmt.Sprintf("Result{value: %v}", r.value)
}

// Wire is the JSON form of a Result.
type Wire struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error *string         `json:"error,omitempty"`
}

// Validate checks that exactly one arm is present and that a value is not
// JSON null.
func (w Wire) Validate() error {
	hasValue := len(w.Value) > 0
	hasError := w.Error != nil
	switch {
	case hasValue && hasError:
		return fmt.Errorf("%w: both value and error present", ErrMalformed)
	case !hasValue && !hasError:
		return fmt.Errorf("%w: neither value nor error present", ErrMalformed)
	case hasValue && string(w.Value) == "null":
		return fmt.Errorf("%w: null value", ErrMalformed)
	}
	return nil
}

// Encode converts r into its wire form.
func Encode[T any](r Result[T]) (Wire, error) {
	if r.err != nil {
		msg := r.err.Message
		return Wire{Error: &msg}, nil
	}
	raw, err := json.Marshal(r.value)
	if err != nil {
		return Wire{}, fmt.Errorf("encode value: %w", err)
	}
	return Wire{Value: raw}, nil
}

// Decode parses and validates a wire envelope.
func Decode[T any](data []byte) (Result[T], error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Result[T]{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromWire[T](w)
}

// FromWire converts a validated wire envelope into a Result.
func FromWire[T any](w Wire) (Result[T], error) {
	if err := w.Validate(); err != nil {
		return Result[T]{}, err
	}
	if w.Error != nil {
		return Fail[T](*w.Error), nil
	}
	var v T
	if err := json.Unmarshal(w.Value, &v); err != nil {
		return Result[T]{}, fmt.Errorf("%w: decode value: %v", ErrMalformed, err)
	}
	return Ok(v), nil
}
