// Package hostfunc provides the capability functions the host exposes to
// code running inside the embedded script runtime.
//
// Host functions are Go functions that the runtime calls synchronously with a
// single object argument. They must return quickly: anything that performs
// real I/O hands the work to a background goroutine and replies later.
//
// # Registry
//
// The [Registry] holds the closed set of capabilities. It is filled once,
// sealed, and then bound into the runtime:
//
//	registry := hostfunc.NewRegistry(hostfunc.Recover(), hostfunc.Logging(logger))
//	registry.Register("log", hostfunc.Console(logger))
//	registry.Register("getSessionData", getSessionData)
//	registry.Seal()
//
// # Built-in Capabilities
//
// HTTP: the network executor behind the runtime's fetch, via [HTTP] and
// [HTTPConfig]. Requests are limited to allowed hosts, URL length and body
// size. Non-2xx statuses are normal responses; failures that never produced a
// response are classified into [wire.FetchError] codes.
//
//	client := hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"hub.example.com"},
//	})
//	resp, ferr := client.Do(ctx, wire.FetchRequest{URL: "https://hub.example.com/hub_info"})
//
// Console: [Console] routes runtime console output into slog.
//
// # Security Model
//
//   - HTTP requests are limited to explicitly allowed hosts
//   - Response bodies are capped and flagged when truncated
//   - A panicking host function is turned into an error by [Recover]
package hostfunc
