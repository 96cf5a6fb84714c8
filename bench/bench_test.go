// Package bench measures the cost of crossing the bridge.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. ./bench/
package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/stackbridge/bridge"
	"github.com/caffeineduck/stackbridge/callback"
	"github.com/caffeineduck/stackbridge/cipher"
	"github.com/caffeineduck/stackbridge/envelope"
	"github.com/caffeineduck/stackbridge/hostfunc"
	"github.com/caffeineduck/stackbridge/language/javascript"
	"github.com/caffeineduck/stackbridge/storage/memory"
	"github.com/caffeineduck/stackbridge/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- Registry: token mint, register, resolve ---

func BenchmarkRegistry_RoundTrip(b *testing.B) {
	reg := callback.New[string](callback.WithLogger(quiet))
	cont := func(envelope.Result[string]) {}
	res := envelope.Ok("v")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		token := reg.Register(cont)
		reg.Resolve(token, res)
	}
}

func BenchmarkRegistry_Parallel(b *testing.B) {
	reg := callback.New[string](callback.WithLogger(quiet))
	cont := func(envelope.Result[string]) {}
	res := envelope.Ok("v")

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			reg.Resolve(reg.Register(cont), res)
		}
	})
}

// --- Host ---

func newHub(b testing.TB) *httptest.Server {
	var hub *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hub_info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"read_url_prefix":%q}`, hub.URL+"/read/")
	})
	mux.HandleFunc("GET /read/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 256)))
	})
	hub = httptest.NewServer(mux)
	b.Cleanup(hub.Close)
	return hub
}

func newHost(b testing.TB) *bridge.Host {
	b.Helper()
	h := bridge.New(javascript.New(), memory.New(),
		bridge.WithAppDomain("https://app.example"),
		bridge.WithHTTP(hostfunc.HTTPConfig{AllowedHosts: []string{"127.0.0.1"}}),
		bridge.WithLogger(quiet),
	)
	if err := h.Init(context.Background()); err != nil {
		b.Fatalf("init: %v", err)
	}
	b.Cleanup(func() { h.Close() })
	return h
}

func signIn(b testing.TB, h *bridge.Host, hubURL string) {
	b.Helper()
	priv, _, err := cipher.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}
	err = h.SignIn(context.Background(), wire.SignInRequest{
		Domain:          "https://app.example",
		AppPrivateKey:   priv,
		IdentityAddress: "ID-BENCH",
		HubURL:          hubURL,
	})
	if err != nil {
		b.Fatalf("signin: %v", err)
	}
}

func BenchmarkHost_ColdStart(b *testing.B) {
	for i := 0; i < b.N; i++ {
		h := bridge.New(javascript.New(), memory.New(),
			bridge.WithAppDomain("https://app.example"),
			bridge.WithLogger(quiet),
		)
		if err := h.Init(context.Background()); err != nil {
			b.Fatal(err)
		}
		h.Close()
	}
}

func BenchmarkHost_SyncCall(b *testing.B) {
	h := newHost(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.IsUserSignedIn(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHost_EncryptContent(b *testing.B) {
	h := newHost(b)
	_, pub, _ := cipher.GenerateKey()
	ctx := context.Background()
	content := bridge.Text(strings.Repeat("a", 1024))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.EncryptContent(ctx, content, wire.CryptoOptions{PublicKey: pub}).Get(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHost_GetFile(b *testing.B) {
	hub := newHub(b)
	h := newHost(b)
	signIn(b, h, hub.URL)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.GetFile(ctx, "bench.txt", wire.GetFileOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHost_GetFileParallel(b *testing.B) {
	hub := newHub(b)
	h := newHost(b)
	signIn(b, h, hub.URL)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := h.GetFile(ctx, "bench.txt", wire.GetFileOptions{}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// =============================================================================
// LATENCY REPORT - Human readable output
// =============================================================================

func TestLatencyReport(t *testing.T) {
	if testing.Short() {
		t.Skip("report only")
	}
	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println()

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}

	runs := 20
	ctx := context.Background()

	coldStart := measure(3, func() {
		h := bridge.New(javascript.New(), memory.New(),
			bridge.WithAppDomain("https://app.example"),
			bridge.WithLogger(quiet),
		)
		h.Init(ctx)
		h.Close()
	})

	hub := newHub(t)
	h := newHost(t)
	signIn(t, h, hub.URL)

	syncCall := measure(runs, func() {
		h.IsUserSignedIn(ctx)
	})
	getFile := measure(runs, func() {
		if _, err := h.GetFile(ctx, "bench.txt", wire.GetFileOptions{}); err != nil {
			t.Errorf("getFile: %v", err)
		}
	})
	encrypt := measure(runs, func() {
		h.EncryptContent(ctx, bridge.Text("hello"), wire.CryptoOptions{})
	})

	fmt.Println("┌──────────────────────────────┬───────────┐")
	fmt.Println("│ Operation                    │ Mean      │")
	fmt.Println("├──────────────────────────────┼───────────┤")
	for _, r := range []struct {
		name string
		d    time.Duration
	}{
		{"init (shims + bundle)", coldStart},
		{"sync call (isSignedIn)", syncCall},
		{"encrypt (app key)", encrypt},
		{"async getFile (local hub)", getFile},
	} {
		fmt.Printf("│ %-28s │ %9s │\n", r.name, formatDuration(r.d))
	}
	fmt.Println("└──────────────────────────────┴───────────┘")
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
}

// =============================================================================
// MEMORY
// =============================================================================

func TestMemoryUsage(t *testing.T) {
	var m runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.Alloc

	hosts := make([]*bridge.Host, 0, 5)
	for i := 0; i < 5; i++ {
		h := bridge.New(javascript.New(), memory.New(),
			bridge.WithAppDomain("https://app.example"),
			bridge.WithLogger(quiet),
		)
		if err := h.Init(context.Background()); err != nil {
			t.Fatal(err)
		}
		hosts = append(hosts, h)
	}

	runtime.ReadMemStats(&m)
	after := m.Alloc

	for _, h := range hosts {
		h.Close()
	}
	runtime.GC()
	runtime.ReadMemStats(&m)
	afterGC := m.Alloc

	t.Logf("Memory before: %d KB", before/1024)
	t.Logf("Memory with 5 hosts: %d KB", after/1024)
	t.Logf("Memory after close + GC: %d KB", afterGC/1024)
}
