// Package fetch performs network requests on behalf of the embedded runtime.
//
// The runtime cannot do I/O itself. Its fetch shim calls [Proxy.Send], which
// mints a token and returns immediately; policy checks and the HTTP call run
// on their own goroutine. When it finishes, the outcome is handed to the
// Deliver function together with the same token, and the owner of the
// runtime settles the promise registered under that token. Concurrent
// requests, even to the same URL, never share a token.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/caffeineduck/stackbridge/callback"
	"github.com/caffeineduck/stackbridge/envelope"
	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/wire"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("fetch proxy closed")

// Deliver receives the outcome of one request. It is called from a
// background goroutine and must marshal the settle onto the runtime owner.
type Deliver func(token string, outcome wire.FetchOutcome)

// Observer receives one call per finished request.
type Observer interface {
	ObserveFetch(outcome wire.FetchOutcome, elapsed time.Duration)
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the proxy logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithRateLimit caps requests per second per host. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *Proxy) {
		p.limiter = newHostLimiter(rps, burst, 0)
	}
}

// WithObserver reports finished requests, typically to metrics.
func WithObserver(o Observer) Option {
	return func(p *Proxy) {
		p.observer = o
	}
}

// Proxy is safe for concurrent use.
type Proxy struct {
	client   *hostfunc.HTTP
	deliver  Deliver
	logger   *slog.Logger
	limiter  *hostLimiter
	observer Observer
	inflight *callback.Registry[wire.FetchOutcome]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Proxy that executes requests with client and reports through
// deliver.
func New(client *hostfunc.HTTP, deliver Deliver, opts ...Option) *Proxy {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Proxy{
		client:  client,
		deliver: deliver,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.inflight = callback.New[wire.FetchOutcome](
		callback.WithName("fetch"),
		callback.WithLogger(p.logger),
	)
	return p
}

// Send starts req and returns its token. Requests rejected by the host
// policy (allow-list, limits, malformed) still get a token; their failure is
// delivered asynchronously like any transport error so the runtime sees a
// single code path.
func (p *Proxy) Send(req wire.FetchRequest) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	start := time.Now()
	var token string
	token = p.inflight.Register(func(res envelope.Result[wire.FetchOutcome]) {
		p.settle(token, res, time.Since(start))
	})

	go func() {
		defer p.wg.Done()
		resp, ferr := p.do(req)
		if ferr != nil {
			p.inflight.Resolve(token, envelope.Ok(wire.Failed(ferr)))
			return
		}
		p.inflight.Resolve(token, envelope.Ok(wire.Succeeded(resp)))
	}()
	return token, nil
}

// Pending returns the number of requests in flight.
func (p *Proxy) Pending() int {
	return p.inflight.Len()
}

// Close cancels in-flight requests, delivers CANCELED for each, and waits for
// their goroutines.
func (p *Proxy) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// do checks req before waiting on the limiter so blocked requests spend no
// tokens. client.Do repeats the check.
func (p *Proxy) do(req wire.FetchRequest) (wire.FetchResponse, *wire.FetchError) {
	if ferr := p.client.Check(req); ferr != nil {
		return wire.FetchResponse{}, ferr
	}
	if p.limiter != nil {
		host := ""
		if u, err := url.Parse(req.URL); err == nil {
			host = u.Hostname()
		}
		if err := p.limiter.Wait(p.ctx, host); err != nil {
			return wire.FetchResponse{}, &wire.FetchError{Code: wire.CodeCanceled, Message: err.Error()}
		}
	}
	return p.client.Do(p.ctx, req)
}

func (p *Proxy) settle(token string, res envelope.Result[wire.FetchOutcome], elapsed time.Duration) {
	outcome, ok := res.Value()
	if !ok {
		outcome = wire.Failed(&wire.FetchError{Code: wire.CodeUnknown, Message: res.Err().Error()})
	}

	if outcome.Error != nil {
		p.logger.Debug("fetch failed", "token", token, "code", outcome.Error.Code, "error", outcome.Error.Message)
	} else {
		p.logger.Debug("fetch completed", "token", token, "status", outcome.Response.StatusCode, "duration", elapsed)
	}
	if p.observer != nil {
		p.observer.ObserveFetch(outcome, elapsed)
	}
	p.deliver(token, outcome)
}
