package hostfunc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/caffeineduck/stackbridge/wire"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// AnyHost in AllowedHosts disables the allow-list.
const AnyHost = "*"

type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	// Transport overrides the client transport, mainly for tests.
	Transport http.RoundTripper
}

// HTTP executes runtime fetch requests with the host's network stack.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: cfg.Transport,
		},
	}
}

// Check validates req against the method set, URL limits and allow-list
// without sending it.
func (h *HTTP) Check(req wire.FetchRequest) *wire.FetchError {
	req.Method = strings.ToUpper(req.Method)
	if err := wire.Validate(req); err != nil {
		return &wire.FetchError{Code: wire.CodeInvalidRequest, Message: err.Error()}
	}
	if len(req.URL) > h.cfg.MaxURLLength {
		return &wire.FetchError{Code: wire.CodeInvalidRequest, Message: "url exceeds max length"}
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return &wire.FetchError{Code: wire.CodeInvalidRequest, Message: "invalid url"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &wire.FetchError{Code: wire.CodeInvalidRequest, Message: "scheme must be http or https"}
	}

	if len(h.cfg.AllowedHosts) == 0 {
		return &wire.FetchError{Code: wire.CodeBlocked, Message: "http not enabled"}
	}
	host := parsed.Hostname()
	if !h.isHostAllowed(host) {
		return &wire.FetchError{Code: wire.CodeBlocked, Message: fmt.Sprintf("host not allowed: %s", host)}
	}
	return nil
}

// Do performs req. It runs Check itself, so callers need not. HTTP error
// statuses come back as responses; a non-nil FetchError means no response
// was produced.
func (h *HTTP) Do(ctx context.Context, req wire.FetchRequest) (wire.FetchResponse, *wire.FetchError) {
	if ferr := h.Check(req); ferr != nil {
		return wire.FetchResponse{}, ferr
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	raw, err := req.RawBody()
	if err != nil {
		return wire.FetchResponse{}, &wire.FetchError{Code: wire.CodeInvalidRequest, Message: err.Error()}
	}
	if len(raw) > 0 {
		if int64(len(raw)) > h.cfg.MaxBodySize {
			return wire.FetchResponse{}, &wire.FetchError{Code: wire.CodeBodyTooLarge, Message: "request body exceeds max size"}
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return wire.FetchResponse{}, &wire.FetchError{Code: wire.CodeInvalidRequest, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return wire.FetchResponse{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		return wire.FetchResponse{}, classifyTransportError(ctx, err)
	}
	truncated := int64(len(respBody)) > h.cfg.MaxBodySize
	if truncated {
		respBody = respBody[:h.cfg.MaxBodySize]
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	out := wire.FetchResponse{
		StatusCode: resp.StatusCode,
		Headers:    respHeaders,
		Truncated:  truncated,
	}
	if isTextual(resp.Header.Get("Content-Type"), respBody) {
		out.Body = string(respBody)
		out.BodyEncoding = wire.EncodingText
	} else {
		out.Body = wire.EncodeBytes(respBody)
		out.BodyEncoding = wire.EncodingBase64
	}
	return out, nil
}

func (h *HTTP) isHostAllowed(host string) bool {
	for _, allowed := range h.cfg.AllowedHosts {
		if allowed == AnyHost || host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// isTextual decides whether a body can cross the boundary as a plain string.
// Bodies that are not valid UTF-8 are always base64 framed, whatever their
// declared type.
func isTextual(contentType string, body []byte) bool {
	if !utf8.Valid(body) {
		return false
	}
	if contentType == "" {
		return true
	}
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/javascript",
		mt == "application/xml",
		mt == "application/x-www-form-urlencoded",
		strings.HasSuffix(mt, "+json"),
		strings.HasSuffix(mt, "+xml"):
		return true
	}
	if _, ok := params["charset"]; ok {
		return true
	}
	return false
}

func classifyTransportError(ctx context.Context, err error) *wire.FetchError {
	msg := err.Error()
	code := wire.CodeUnknown

	var dnsErr *net.DNSError
	var netErr net.Error
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		code = wire.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "timeout"):
		code = wire.CodeTimeout
	case errors.As(err, &dnsErr), strings.Contains(msg, "no such host"):
		code = wire.CodeHostNotFound
	case errors.Is(err, syscall.ECONNREFUSED), strings.Contains(msg, "connection refused"):
		code = wire.CodeConnectionRefused
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostnameErr),
		strings.Contains(msg, "tls:"):
		code = wire.CodeTLS
	}
	return &wire.FetchError{Code: code, Message: msg}
}
