package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter applies a token bucket per host and evicts idle entries.
type hostLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byHost  map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newHostLimiter returns nil when rps or burst disable limiting.
func newHostLimiter(rps float64, burst int, idleTTL time.Duration) *hostLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &hostLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byHost:  make(map[string]*limiterEntry),
		idleTTL: idleTTL,
	}
}

// Wait blocks until host may send another request or ctx ends.
func (l *hostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	return l.get(strings.ToLower(host), time.Now()).Wait(ctx)
}

func (l *hostLimiter) get(host string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byHost[host]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byHost[host] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byHost {
			if v.lastSeen.Before(cutoff) {
				delete(l.byHost, k)
			}
		}
	}
	return e.limiter
}
