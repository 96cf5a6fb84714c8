// Package stackbridge runs a JavaScript client bundle in an embedded runtime
// and exposes its asynchronous storage operations to Go.
//
// # Overview
//
// The runtime has no I/O of its own. It reaches the host through a single
// capability object: fetches are proxied by the host's HTTP stack, the user
// session is persisted in a host key-value store, and cryptography runs in
// Go. Operations whose result arrives later (getFile, putFile,
// lookupProfile) are correlated by a token minted per call, so any number
// of them can be in flight at once.
//
// # Basic Usage
//
//	store, _ := bbolt.Open("session.db")
//	h := bridge.New(javascript.New(), store,
//	    bridge.WithAppDomain("https://app.example"),
//	    bridge.WithHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"hub.blockstack.org"}}))
//	if err := h.Init(ctx); err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	content, err := h.GetFile(ctx, "notes.txt", wire.GetFileOptions{})
//
//	// Or without blocking:
//	h.GetFileAsync("notes.txt", wire.GetFileOptions{}, func(r envelope.Result[bridge.Content]) {
//	    ...
//	})
//
// See the [bridge], [callback], [session], [fetch] and [language/javascript]
// packages for detailed API documentation.
package stackbridge
