// Package bridge runs the embedded business-logic script and exposes its
// asynchronous operations to Go callers.
//
// A Host owns one runtime. Every call into it happens on a single owner
// goroutine; callers, fetch completions and replies are funneled through a
// job queue. Operations whose result arrives later register a continuation
// under a fresh token, pass the token into the runtime, and are completed
// when the runtime calls back through the capability object with that token.
//
//	h := bridge.New(javascript.New(), store,
//		bridge.WithAppDomain("https://app.example"),
//		bridge.WithHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"hub.example"}}))
//	if err := h.Init(ctx); err != nil {
//		return err
//	}
//	defer h.Close()
//	content, err := h.GetFile(ctx, "notes.txt", wire.GetFileOptions{})
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/stackbridge/callback"
	"github.com/caffeineduck/stackbridge/fetch"
	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/language"
	"github.com/caffeineduck/stackbridge/session"
	"github.com/caffeineduck/stackbridge/storage"
	"github.com/caffeineduck/stackbridge/wire"
)

// State is the lifecycle stage of a Host.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	// Failed is terminal: Init failed and the Host must be discarded.
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Host is safe for concurrent use.
type Host struct {
	cfg     hostConfig
	rt      language.Runtime
	logger  *slog.Logger
	session *session.Bridge
	proxy   *fetch.Proxy
	caps    *hostfunc.Registry
	capsErr error

	files    *callback.Registry[Content]
	writes   *callback.Registry[string]
	profiles *callback.Registry[Profile]

	jobs     chan func()
	quit     chan struct{}
	loopDone chan struct{}
	started  bool

	state     atomic.Int32
	mu        sync.Mutex
	ready     chan struct{}
	done      chan struct{}
	err       error
	closeOnce sync.Once
}

// New creates a Host around rt, persisting the session in store. Init must
// be called before any operation.
func New(rt language.Runtime, store storage.Store, opts ...Option) *Host {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Host{
		cfg:      cfg,
		rt:       rt,
		logger:   cfg.logger.With("runtime", rt.Name()),
		jobs:     make(chan func(), jobQueueSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}

	sessionOpts := []session.Option{session.WithLogger(h.logger)}
	if cfg.sessionKey != "" {
		sessionOpts = append(sessionOpts, session.WithKey(cfg.sessionKey))
	}
	h.session = session.New(store, sessionOpts...)

	h.proxy = fetch.New(hostfunc.NewHTTP(cfg.http), h.deliverFetch,
		fetch.WithLogger(h.logger),
		fetch.WithRateLimit(cfg.fetchRPS, cfg.fetchBurst),
		fetch.WithObserver(cfg.metrics),
	)

	h.files = newReplies[Content](h, "getFile")
	h.writes = newReplies[string](h, "putFile")
	h.profiles = newReplies[Profile](h, "lookupProfile")

	h.caps, h.capsErr = h.capabilities()
	return h
}

func newReplies[T any](h *Host, op string) *callback.Registry[T] {
	reg := callback.New[T](callback.WithName(op), callback.WithLogger(h.logger))
	reg.OnDrop(func(string) { h.cfg.metrics.mismatch(op) })
	return reg
}

// Init loads the persisted session, binds the capability object, evaluates
// the shims and the bundle in order and opens the session. Any failure is
// returned as a *RuntimeFault and leaves the Host in the Failed state.
func (h *Host) Init(ctx context.Context) error {
	if !h.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
		switch s := h.State(); s {
		case Closed:
			return ErrClosed
		case Failed:
			return h.Err()
		default:
			return fmt.Errorf("init: host is already %s", s)
		}
	}

	if h.capsErr != nil {
		return h.fail(&RuntimeFault{Stage: "capabilities", Err: h.capsErr})
	}
	if err := h.session.Load(ctx); err != nil {
		return h.fail(&RuntimeFault{Stage: "load session", Err: err})
	}

	h.mu.Lock()
	if h.State() == Closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.started = true
	go h.loop()
	h.mu.Unlock()

	err := h.submit(ctx, func() error {
		if err := h.rt.Bind(capabilityObject, h.caps); err != nil {
			return &RuntimeFault{Stage: "bind", Err: err}
		}
		for _, s := range h.rt.Shims() {
			if err := h.rt.Eval(s); err != nil {
				return &RuntimeFault{Stage: "eval " + s.Name, Err: err}
			}
		}
		if err := h.rt.Eval(h.cfg.bundle); err != nil {
			return &RuntimeFault{Stage: "eval " + h.cfg.bundle.Name, Err: err}
		}
		if _, err := h.call(h.entry("newSession"), h.cfg.appDomain, h.cfg.lookupURL); err != nil {
			return &RuntimeFault{Stage: "newSession", Err: err}
		}
		return nil
	})
	if err != nil {
		var fault *RuntimeFault
		if !errors.As(err, &fault) {
			err = &RuntimeFault{Stage: "init", Err: err}
		}
		return h.fail(err)
	}

	if !h.state.CompareAndSwap(int32(Initializing), int32(Ready)) {
		return ErrClosed
	}
	close(h.ready)
	h.logger.Info("bridge ready", "appDomain", h.cfg.appDomain, "capabilities", len(h.caps.List()))
	return nil
}

func (h *Host) fail(err error) error {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	if h.state.CompareAndSwap(int32(Initializing), int32(Failed)) {
		h.logger.Error("bridge init failed", "error", err)
	}
	return err
}

// State returns the current lifecycle stage.
func (h *Host) State() State {
	return State(h.state.Load())
}

// Ready is closed once Init succeeds.
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

// Done is closed once Close has finished.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// Err returns the Init failure, if any.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Host) checkReady() error {
	switch h.State() {
	case Ready:
		return nil
	case Closed:
		return ErrClosed
	default:
		return ErrNotReady
	}
}

// Close fails every pending operation with "host closed", stops in-flight
// fetches and the owner goroutine, flushes the session and releases the
// runtime. The store passed to New is not closed.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.state.Store(int32(Closed))
		started := h.started
		h.mu.Unlock()

		n := h.files.CancelAll(closedReason) +
			h.writes.CancelAll(closedReason) +
			h.profiles.CancelAll(closedReason)
		if n > 0 {
			h.logger.Debug("canceled pending operations", "count", n)
		}

		h.proxy.Close()
		close(h.quit)
		if started {
			<-h.loopDone
		}

		err = errors.Join(h.session.Close(), h.rt.Close())
		close(h.done)
		h.logger.Debug("bridge closed")
	})
	return err
}

// deliverFetch is called by the proxy from a background goroutine.
func (h *Host) deliverFetch(token string, outcome wire.FetchOutcome) {
	if !h.post(func() { h.settleFetch(token, outcome) }) {
		h.logger.Debug("fetch outcome after close", "token", token)
	}
}
