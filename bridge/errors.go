package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caffeineduck/stackbridge/wire"
)

var (
	// ErrNotReady is returned by every operation until Init succeeds.
	ErrNotReady = errors.New("bridge not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge closed")
	// ErrInvalidArgument rejects a call before it reaches the runtime.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrProtocolMismatch marks replies that cannot be matched to a caller.
	// It is only logged and counted.
	ErrProtocolMismatch = errors.New("protocol mismatch")
)

// RuntimeFault is an initialization failure. The Host that returned it is
// unusable and must be replaced.
type RuntimeFault struct {
	Stage string
	Err   error
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("runtime fault during %s: %v", e.Stage, e.Err)
}

func (e *RuntimeFault) Unwrap() error {
	return e.Err
}

// OperationError is the error arm of a reply from the runtime.
type OperationError struct {
	Op      string
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// TransportError is an operation that failed because a fetch it depended on
// never produced a response.
type TransportError struct {
	Op  string
	Err *wire.FetchError
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var transportCodes = []string{
	wire.CodeTimeout,
	wire.CodeHostNotFound,
	wire.CodeConnectionRefused,
	wire.CodeTLS,
	wire.CodeCanceled,
	wire.CodeBlocked,
	wire.CodeBodyTooLarge,
	wire.CodeInvalidRequest,
	wire.CodeUnknown,
}

// failure maps a reply's error message to a typed error. The runtime prefixes
// transport failures with their code.
func failure(op, msg string) error {
	for _, code := range transportCodes {
		if rest, ok := strings.CutPrefix(msg, code+": "); ok {
			return &TransportError{Op: op, Err: &wire.FetchError{Code: code, Message: rest}}
		}
	}
	return &OperationError{Op: op, Message: msg}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
