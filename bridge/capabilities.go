package bridge

import (
	"context"
	"fmt"

	"github.com/caffeineduck/stackbridge/callback"
	"github.com/caffeineduck/stackbridge/cipher"
	"github.com/caffeineduck/stackbridge/envelope"
	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/session"
	"github.com/caffeineduck/stackbridge/wire"
)

// capabilityObject is the global name the runtime sees the host under.
const capabilityObject = "host"

// capabilities builds the closed set of host functions the runtime may call.
func (h *Host) capabilities() (*hostfunc.Registry, error) {
	reg := hostfunc.NewRegistry(hostfunc.Recover(), hostfunc.Logging(h.logger))

	funcs := map[string]hostfunc.Func{
		"log":                  hostfunc.Console(h.logger),
		"getSessionData":       h.getSessionData,
		"setSessionData":       h.setSessionData,
		"deleteSessionData":    h.deleteSessionData,
		"fetch":                h.fetch,
		"getFileResult":        h.getFileResult,
		"getFileFailure":       failureHandler(h, "getFile", h.files),
		"putFileResult":        h.putFileResult,
		"putFileFailure":       failureHandler(h, "putFile", h.writes),
		"lookupProfileResult":  h.lookupProfileResult,
		"lookupProfileFailure": failureHandler(h, "lookupProfile", h.profiles),
	}
	for name, fn := range funcs {
		if err := reg.Register(name, fn); err != nil {
			return nil, err
		}
	}
	if err := cipher.Register(reg); err != nil {
		return nil, err
	}
	reg.Seal()
	return reg, nil
}

func (h *Host) getSessionData(context.Context, map[string]any) (any, error) {
	state, ok := h.session.Read()
	if !ok {
		return nil, nil
	}
	return state.String(), nil
}

func (h *Host) setSessionData(_ context.Context, args map[string]any) (any, error) {
	data, err := hostfunc.String(args, "data")
	if err != nil {
		return nil, err
	}
	return nil, h.session.Write(session.State(data))
}

func (h *Host) deleteSessionData(context.Context, map[string]any) (any, error) {
	return nil, h.session.Clear()
}

// fetch hands the request to the proxy and returns its token at once.
func (h *Host) fetch(_ context.Context, args map[string]any) (any, error) {
	var req wire.FetchRequest
	var err error
	if req.URL, err = hostfunc.String(args, "url"); err != nil {
		return nil, err
	}
	if req.Method, err = hostfunc.OptString(args, "method"); err != nil {
		return nil, err
	}
	if req.Headers, err = hostfunc.StringMap(args, "headers"); err != nil {
		return nil, err
	}
	if req.Body, err = hostfunc.OptString(args, "body"); err != nil {
		return nil, err
	}
	if req.BodyEncoding, err = hostfunc.OptString(args, "bodyEncoding"); err != nil {
		return nil, err
	}
	return h.proxy.Send(req)
}

// settleFetch runs on the owner and resolves the runtime promise for token.
func (h *Host) settleFetch(token string, outcome wire.FetchOutcome) {
	if h.State() == Closed {
		return
	}
	payload, err := outcome.JSON()
	if err != nil {
		h.logger.Warn("dropping fetch outcome", "token", token, "error", err)
		h.cfg.metrics.mismatch("fetch")
		return
	}
	res, err := h.call("__bridge.settleFetch", token, payload)
	if err != nil {
		h.logger.Error("settle fetch", "token", token, "error", err)
		return
	}
	if settled, _ := res.(bool); !settled {
		h.cfg.metrics.mismatch("fetch")
	}
}

func (h *Host) getFileResult(_ context.Context, args map[string]any) (any, error) {
	token, ok := h.replyToken("getFile", args)
	if !ok {
		return nil, nil
	}
	res := func() envelope.Result[Content] {
		content, err := hostfunc.String(args, "content")
		if err != nil {
			return malformedReply[Content](h, "getFile", token, err)
		}
		isBinary, err := hostfunc.Bool(args, "isBinary")
		if err != nil {
			return malformedReply[Content](h, "getFile", token, err)
		}
		c, err := unframe(content, isBinary)
		if err != nil {
			return malformedReply[Content](h, "getFile", token, err)
		}
		return envelope.Ok(c)
	}()
	h.files.Resolve(token, res)
	return nil, nil
}

func (h *Host) putFileResult(_ context.Context, args map[string]any) (any, error) {
	token, ok := h.replyToken("putFile", args)
	if !ok {
		return nil, nil
	}
	url, err := hostfunc.String(args, "url")
	if err != nil {
		h.writes.Resolve(token, malformedReply[string](h, "putFile", token, err))
		return nil, nil
	}
	h.writes.Resolve(token, envelope.Ok(url))
	return nil, nil
}

func (h *Host) lookupProfileResult(_ context.Context, args map[string]any) (any, error) {
	token, ok := h.replyToken("lookupProfile", args)
	if !ok {
		return nil, nil
	}
	raw, err := hostfunc.String(args, "profile")
	if err != nil {
		h.profiles.Resolve(token, malformedReply[Profile](h, "lookupProfile", token, err))
		return nil, nil
	}
	p, err := parseProfile(raw)
	if err != nil {
		h.profiles.Resolve(token, malformedReply[Profile](h, "lookupProfile", token, err))
		return nil, nil
	}
	h.profiles.Resolve(token, envelope.Ok(p))
	return nil, nil
}

// failureHandler resolves the token in reg with the reply's error message.
func failureHandler[T any](h *Host, op string, reg *callback.Registry[T]) hostfunc.Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		token, ok := h.replyToken(op, args)
		if !ok {
			return nil, nil
		}
		msg, _ := hostfunc.OptString(args, "error")
		reg.Resolve(token, envelope.Fail[T](msg))
		return nil, nil
	}
}

// replyToken extracts the correlation token. A reply without one cannot be
// routed and is dropped.
func (h *Host) replyToken(op string, args map[string]any) (string, bool) {
	if h.State() == Closed {
		return "", false
	}
	token, err := hostfunc.String(args, "token")
	if err != nil || token == "" {
		h.logger.Warn("reply without token", "op", op, "error", fmt.Errorf("%w: %v", ErrProtocolMismatch, err))
		h.cfg.metrics.mismatch(op)
		return "", false
	}
	return token, true
}

// malformedReply counts a routable reply whose payload cannot be decoded and
// fails the caller instead of leaving it to the reply timeout.
func malformedReply[T any](h *Host, op, token string, err error) envelope.Result[T] {
	h.logger.Warn("malformed reply", "op", op, "token", token, "error", err)
	h.cfg.metrics.mismatch(op)
	return envelope.Failf[T]("malformed reply: %v", err)
}
