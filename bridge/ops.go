package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/stackbridge/callback"
	"github.com/caffeineduck/stackbridge/cipher"
	"github.com/caffeineduck/stackbridge/envelope"
	"github.com/caffeineduck/stackbridge/language"
	"github.com/caffeineduck/stackbridge/session"
	"github.com/caffeineduck/stackbridge/wire"
)

const closedReason = "host closed"

// IsUserSignedIn reports whether the runtime holds a complete session.
func (h *Host) IsUserSignedIn(ctx context.Context) (bool, error) {
	if err := h.checkReady(); err != nil {
		return false, err
	}
	var signedIn bool
	err := h.submit(ctx, func() error {
		res, err := h.call(h.entry("isSignedIn"))
		signedIn, _ = res.(bool)
		return err
	})
	return signedIn, callError("isSignedIn", err)
}

// SignIn replaces the session and waits until it is persisted.
func (h *Host) SignIn(ctx context.Context, req wire.SignInRequest) error {
	if err := h.checkReady(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	err := h.submit(ctx, func() error {
		_, err := h.call(h.entry("signIn"), req.Domain, req.AppPrivateKey, req.IdentityAddress, req.HubURL, req.UserDataJSON())
		return err
	})
	if err != nil {
		return callError("signIn", err)
	}
	return h.session.Flush(ctx)
}

// SignUserOut clears the session in the runtime and the store.
func (h *Host) SignUserOut(ctx context.Context) error {
	if err := h.checkReady(); err != nil {
		return err
	}
	err := h.submit(ctx, func() error {
		_, err := h.call(h.entry("signOut"))
		return err
	})
	if err != nil {
		return callError("signOut", err)
	}
	return h.session.Flush(ctx)
}

// SessionData returns the typed view of the current session snapshot
// without entering the runtime.
func (h *Host) SessionData() (session.Data, bool) {
	state, ok := h.session.Read()
	if !ok {
		return session.Data{}, false
	}
	data, err := state.Decode()
	if err != nil {
		return session.Data{}, false
	}
	return data, true
}

// GetFile reads path from the signed-in user's storage hub, or another
// user's when opts.Username is set.
func (h *Host) GetFile(ctx context.Context, path string, opts wire.GetFileOptions) (Content, error) {
	args, err := h.getFileArgs(path, opts)
	if err != nil {
		return Content{}, err
	}
	return wait(ctx, h, "getFile", h.files, args)
}

// GetFileAsync is GetFile with the result delivered to fn on its own
// goroutine. Errors returned directly mean fn will not be called.
func (h *Host) GetFileAsync(path string, opts wire.GetFileOptions, fn func(envelope.Result[Content])) error {
	args, err := h.getFileArgs(path, opts)
	if err != nil {
		return err
	}
	_, err = issue(context.Background(), h, "getFile", h.files, async(fn), args)
	return err
}

func (h *Host) getFileArgs(path string, opts wire.GetFileOptions) (func(string) []any, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, invalid("path is required")
	}
	optsJSON, err := wire.MarshalOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return func(token string) []any {
		return []any{path, optsJSON, token}
	}, nil
}

// PutFile writes content to path and returns its public URL. Binary content
// crosses into the runtime base64 framed.
func (h *Host) PutFile(ctx context.Context, path string, content Content, opts wire.PutFileOptions) (string, error) {
	args, err := h.putFileArgs(path, content, opts)
	if err != nil {
		return "", err
	}
	return wait(ctx, h, "putFile", h.writes, args)
}

func (h *Host) PutFileAsync(path string, content Content, opts wire.PutFileOptions, fn func(envelope.Result[string])) error {
	args, err := h.putFileArgs(path, content, opts)
	if err != nil {
		return err
	}
	_, err = issue(context.Background(), h, "putFile", h.writes, async(fn), args)
	return err
}

func (h *Host) putFileArgs(path string, content Content, opts wire.PutFileOptions) (func(string) []any, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, invalid("path is required")
	}
	optsJSON, err := wire.MarshalOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	body, isBinary, err := content.frame()
	if err != nil {
		return nil, err
	}
	return func(token string) []any {
		return []any{path, body, optsJSON, token, isBinary}
	}, nil
}

// LookupProfile resolves username through lookupURL, or the configured
// default when it is empty.
func (h *Host) LookupProfile(ctx context.Context, username, lookupURL string) (Profile, error) {
	args, err := h.lookupArgs(username, lookupURL)
	if err != nil {
		return nil, err
	}
	return wait(ctx, h, "lookupProfile", h.profiles, args)
}

func (h *Host) LookupProfileAsync(username, lookupURL string, fn func(envelope.Result[Profile])) error {
	args, err := h.lookupArgs(username, lookupURL)
	if err != nil {
		return err
	}
	_, err = issue(context.Background(), h, "lookupProfile", h.profiles, async(fn), args)
	return err
}

func (h *Host) lookupArgs(username, lookupURL string) (func(string) []any, error) {
	if err := h.checkReady(); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, invalid("username is required")
	}
	if lookupURL == "" {
		lookupURL = h.cfg.lookupURL
	}
	return func(token string) []any {
		return []any{username, lookupURL, token}
	}, nil
}

// EncryptContent seals content for opts.PublicKey, the public key of
// opts.PrivateKey, or the session app key, in that order. It does no I/O
// and completes synchronously.
func (h *Host) EncryptContent(ctx context.Context, content Content, opts wire.CryptoOptions) envelope.Result[cipher.CipherObject] {
	if err := h.checkReady(); err != nil {
		return envelope.Fail[cipher.CipherObject](err.Error())
	}
	optsJSON, err := wire.MarshalOptions(opts)
	if err != nil {
		return envelope.Failf[cipher.CipherObject]("%v: %v", ErrInvalidArgument, err)
	}
	body, isBinary, err := content.frame()
	if err != nil {
		return envelope.Fail[cipher.CipherObject](err.Error())
	}

	var out string
	err = h.submit(ctx, func() error {
		res, err := h.call(h.entry("encryptContent"), body, optsJSON, isBinary)
		out, _ = res.(string)
		return err
	})
	if err != nil {
		return envelope.Fail[cipher.CipherObject](callError("encryptContent", err).Error())
	}
	c, err := cipher.Parse([]byte(out))
	if err != nil {
		return envelope.Fail[cipher.CipherObject](err.Error())
	}
	return envelope.Ok(c)
}

// DecryptContent opens c with opts.PrivateKey or the session app key and
// returns content in the shape it was encrypted from.
func (h *Host) DecryptContent(ctx context.Context, c cipher.CipherObject, opts wire.CryptoOptions) (Content, error) {
	if err := h.checkReady(); err != nil {
		return Content{}, err
	}
	optsJSON, err := wire.MarshalOptions(opts)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	var out string
	err = h.submit(ctx, func() error {
		res, err := h.call(h.entry("decryptContent"), c.JSON(), optsJSON, !c.WasString)
		out, _ = res.(string)
		return err
	})
	if err != nil {
		return Content{}, callError("decryptContent", err)
	}
	d, err := wire.ParseDecrypted(out)
	if err != nil {
		return Content{}, err
	}
	return unframe(d.Content, d.IsBinary)
}

// DecryptContentAsync runs DecryptContent and hands the result to fn.
func (h *Host) DecryptContentAsync(c cipher.CipherObject, opts wire.CryptoOptions, fn func(envelope.Result[Content])) error {
	if err := h.checkReady(); err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.replyTimeout)
		defer cancel()
		content, err := h.DecryptContent(ctx, c, opts)
		if err != nil {
			fn(envelope.Fail[Content](err.Error()))
			return
		}
		fn(envelope.Ok(content))
	}()
	return nil
}

// issue registers cont under a fresh token and calls the op's entry point
// with the arguments built for that token. If the call itself fails the
// token is withdrawn and cont is never invoked.
func issue[T any](ctx context.Context, h *Host, op string, reg *callback.Registry[T], cont callback.Continuation[T], args func(token string) []any) (string, error) {
	h.cfg.metrics.issued(op)
	token := reg.Register(func(r envelope.Result[T]) {
		h.cfg.metrics.settled(op, resultLabel(r))
		cont(r)
	})
	err := h.submit(ctx, func() error {
		_, err := h.call(h.entry(op), args(token)...)
		return err
	})
	if err != nil {
		if reg.Cancel(token) {
			h.cfg.metrics.settled(op, "canceled")
		}
		return "", callError(op, err)
	}
	return token, nil
}

// wait issues op and blocks for the reply. When ctx ends first the token is
// withdrawn, so a late reply is dropped rather than delivered.
func wait[T any](ctx context.Context, h *Host, op string, reg *callback.Registry[T], args func(token string) []any) (T, error) {
	var zero T
	if _, ok := ctx.Deadline(); !ok && h.cfg.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.replyTimeout)
		defer cancel()
	}

	replies := make(chan envelope.Result[T], 1)
	token, err := issue(ctx, h, op, reg, func(r envelope.Result[T]) { replies <- r }, args)
	if err != nil {
		return zero, err
	}

	select {
	case r := <-replies:
		return unwrapReply(op, r)
	case <-ctx.Done():
		if reg.Cancel(token) {
			h.cfg.metrics.settled(op, "canceled")
			return zero, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		// The reply won the race and is being delivered.
		return unwrapReply(op, <-replies)
	}
}

func async[T any](fn func(envelope.Result[T])) callback.Continuation[T] {
	return func(r envelope.Result[T]) {
		go fn(r)
	}
}

func unwrapReply[T any](op string, r envelope.Result[T]) (T, error) {
	v, ok := r.Value()
	if ok {
		return v, nil
	}
	msg := r.Err().Error()
	if msg == closedReason {
		return v, fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return v, failure(op, msg)
}

func resultLabel[T any](r envelope.Result[T]) string {
	if r.HasValue() {
		return "ok"
	}
	return "error"
}

// callError classifies a failed synchronous call into the runtime.
func callError(op string, err error) error {
	if err == nil {
		return nil
	}
	var script *language.ScriptError
	switch {
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &script):
		return failure(op, script.Message)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
