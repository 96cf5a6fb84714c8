package wire

import (
	"encoding/json"
	"fmt"
)

// Transport error codes carried by FetchError.
const (
	CodeTimeout           = "TIMEOUT"
	CodeHostNotFound      = "HOST_NOT_FOUND"
	CodeConnectionRefused = "CONNECTION_REFUSED"
	CodeTLS               = "TLS"
	CodeCanceled          = "CANCELED"
	CodeBlocked           = "BLOCKED"
	CodeBodyTooLarge      = "BODY_TOO_LARGE"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnknown           = "UNKNOWN"
)

// FetchRequest is a network request issued by the runtime.
type FetchRequest struct {
	URL          string            `json:"url" validate:"required,url,startswith=http"`
	Method       string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT DELETE PATCH HEAD OPTIONS"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	BodyEncoding string            `json:"bodyEncoding,omitempty" validate:"omitempty,oneof=text base64"`
}

// RawBody returns the request body with base64 framing removed.
func (r FetchRequest) RawBody() ([]byte, error) {
	if r.BodyEncoding == EncodingBase64 {
		return DecodeBytes(r.Body)
	}
	return []byte(r.Body), nil
}

// FetchResponse is the HTTP-level result of a request. Non-2xx statuses are
// responses, not errors.
type FetchResponse struct {
	StatusCode   int               `json:"statusCode"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body"`
	BodyEncoding string            `json:"bodyEncoding"`
	Truncated    bool              `json:"truncated,omitempty"`
}

// OK reports a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FetchError describes a request that never produced a response.
type FetchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FetchOutcome settles one in-flight fetch. Exactly one of Response and
// Error is set.
type FetchOutcome struct {
	V        int            `json:"v"`
	Response *FetchResponse `json:"response,omitempty"`
	Error    *FetchError    `json:"error,omitempty"`
}

// Succeeded wraps a response.
func Succeeded(resp FetchResponse) FetchOutcome {
	return FetchOutcome{V: Version, Response: &resp}
}

// Failed wraps a transport error.
func Failed(err *FetchError) FetchOutcome {
	return FetchOutcome{V: Version, Error: err}
}

// Validate checks the one-arm invariant.
func (o FetchOutcome) Validate() error {
	if (o.Response == nil) == (o.Error == nil) {
		return fmt.Errorf("%w: fetch outcome must carry exactly one of response or error", ErrInvalid)
	}
	return nil
}

// JSON encodes o for the runtime.
func (o FetchOutcome) JSON() (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode fetch outcome: %w", err)
	}
	return string(b), nil
}
