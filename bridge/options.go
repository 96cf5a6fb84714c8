package bridge

import (
	"log/slog"
	"time"

	"github.com/caffeineduck/stackbridge/bundle"
	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/language"
)

const (
	DefaultLookupURL    = "https://core.blockstack.org/v1/names/"
	DefaultCallTimeout  = 5 * time.Second
	DefaultReplyTimeout = 60 * time.Second
)

// Option configures a Host.
type Option func(*hostConfig)

type hostConfig struct {
	appDomain    string
	lookupURL    string
	entryPoint   string
	bundle       language.Script
	http         hostfunc.HTTPConfig
	fetchRPS     float64
	fetchBurst   int
	callTimeout  time.Duration
	replyTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	sessionKey   string
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		lookupURL:    DefaultLookupURL,
		entryPoint:   bundle.EntryPoint,
		bundle:       bundle.Script(),
		callTimeout:  DefaultCallTimeout,
		replyTimeout: DefaultReplyTimeout,
		logger:       slog.Default(),
	}
}

// WithAppDomain sets the domain passed to newSession.
func WithAppDomain(domain string) Option {
	return func(c *hostConfig) {
		c.appDomain = domain
	}
}

// WithLookupURL sets the default profile lookup prefix.
func WithLookupURL(url string) Option {
	return func(c *hostConfig) {
		if url != "" {
			c.lookupURL = url
		}
	}
}

// WithEntryPoint names the global object the bundle defines.
func WithEntryPoint(name string) Option {
	return func(c *hostConfig) {
		c.entryPoint = name
	}
}

// WithBundle replaces the embedded bundle.
func WithBundle(s language.Script) Option {
	return func(c *hostConfig) {
		c.bundle = s
	}
}

// WithHTTP configures the fetch proxy's HTTP stack, including the host
// allow-list. Without it the runtime cannot reach the network.
func WithHTTP(cfg hostfunc.HTTPConfig) Option {
	return func(c *hostConfig) {
		c.http = cfg
	}
}

// WithFetchRateLimit caps fetches per second per host.
func WithFetchRateLimit(rps float64, burst int) Option {
	return func(c *hostConfig) {
		c.fetchRPS = rps
		c.fetchBurst = burst
	}
}

// WithCallTimeout bounds a single synchronous call into the runtime. Zero
// disables the guard.
func WithCallTimeout(d time.Duration) Option {
	return func(c *hostConfig) {
		c.callTimeout = d
	}
}

// WithReplyTimeout bounds how long blocking operations wait for a reply
// when the caller's context has no deadline.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *hostConfig) {
		c.replyTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *hostConfig) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *hostConfig) {
		c.metrics = m
	}
}

// WithSessionKey sets the storage key of the session entry.
func WithSessionKey(key string) Option {
	return func(c *hostConfig) {
		c.sessionKey = key
	}
}
