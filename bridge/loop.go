package bridge

import (
	"context"
	"fmt"
	"time"
)

// The owner goroutine is the only goroutine that touches the runtime. Public
// operations submit work and wait; background completions post work and
// return.

const jobQueueSize = 64

func (h *Host) loop() {
	defer close(h.loopDone)
	for {
		select {
		case job := <-h.jobs:
			job()
		case <-h.quit:
			return
		}
	}
}

// submit runs fn on the owner and waits for its result. A job whose context
// ended while it was queued is skipped.
func (h *Host) submit(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	job := func() {
		if err := ctx.Err(); err != nil {
			errc <- err
			return
		}
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("runtime call panicked: %v", p)
			}
		}()
		errc <- fn()
	}

	select {
	case h.jobs <- job:
	case <-h.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-h.loopDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the owner without waiting. It reports false when the
// owner has stopped.
func (h *Host) post(fn func()) bool {
	select {
	case h.jobs <- fn:
		return true
	case <-h.quit:
		return false
	}
}

// call invokes a runtime function on the owner, interrupting it after the
// call timeout.
func (h *Host) call(path string, args ...any) (any, error) {
	if h.cfg.callTimeout <= 0 {
		return h.rt.Call(path, args...)
	}
	fired := make(chan struct{})
	timer := time.AfterFunc(h.cfg.callTimeout, func() {
		h.rt.Interrupt(fmt.Sprintf("%s exceeded %s", path, h.cfg.callTimeout))
		close(fired)
	})
	res, err := h.rt.Call(path, args...)
	if !timer.Stop() {
		<-fired
		h.rt.ClearInterrupt()
	}
	return res, err
}

func (h *Host) entry(fn string) string {
	return h.cfg.entryPoint + "." + fn
}
