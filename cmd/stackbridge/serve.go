package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/stackbridge/bridge"
	"github.com/caffeineduck/stackbridge/cipher"
	"github.com/caffeineduck/stackbridge/wire"
)

const (
	maxRequestBody  = 8 << 20
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the bridge over HTTP",
		Long: `Start an HTTP server backed by one initialized bridge.

Endpoints:
  GET    /health               Health check
  GET    /status               Session state
  POST   /signin               Sign in, body is a sign-in request
  POST   /signout              Clear the session
  GET    /files/{path}         Read a file (?decrypt, ?username, ?app, ?lookupUrl)
  PUT    /files/{path}         Write a file (?encrypt, ?key, ?binary)
  GET    /profiles/{username}  Resolve a profile (?lookupUrl)
  POST   /encrypt              Encrypt content
  POST   /decrypt              Decrypt a cipher object
  GET    /metrics              Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			s, err := g.open(ctx, cmd.ErrOrStderr(), bridge.WithMetrics(bridge.NewMetrics(reg)))
			if err != nil {
				return err
			}
			defer s.Close()

			if addr == "" {
				addr = s.cfg.Serve.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(s.host, s.cfg.AppDomain, reg, s.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				s.logger.Info("listening", "addr", addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			case <-s.host.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config, :8080)")
	return cmd
}

type server struct {
	host      *bridge.Host
	appDomain string
	logger    *slog.Logger
}

func newServer(h *bridge.Host, appDomain string, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	s := &server{host: h, appDomain: appDomain, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("POST /signin", s.signIn)
	mux.HandleFunc("POST /signout", s.signOut)
	mux.HandleFunc("GET /files/{path...}", s.getFile)
	mux.HandleFunc("PUT /files/{path...}", s.putFile)
	mux.HandleFunc("GET /profiles/{username}", s.lookupProfile)
	mux.HandleFunc("POST /encrypt", s.encrypt)
	mux.HandleFunc("POST /decrypt", s.decrypt)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.host.State() != bridge.Ready {
		http.Error(w, s.host.State().String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	rep, err := status(r.Context(), s.host)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *server) signIn(w http.ResponseWriter, r *http.Request) {
	var req wire.SignInRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if req.Domain == "" {
		req.Domain = s.appDomain
	}
	if err := s.host.SignIn(r.Context(), req); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) signOut(w http.ResponseWriter, r *http.Request) {
	if err := s.host.SignUserOut(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := wire.GetFileOptions{
		Decrypt:           queryBool(q.Get("decrypt")),
		Username:          q.Get("username"),
		App:               q.Get("app"),
		ZoneFileLookupURL: q.Get("lookupUrl"),
	}
	content, err := s.host.GetFile(r.Context(), r.PathValue("path"), opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	if content.IsBinary() {
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Write(content.Bytes())
}

func (s *server) putFile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	q := r.URL.Query()
	opts := wire.PutFileOptions{
		Encrypt:       queryBool(q.Get("encrypt")),
		EncryptionKey: q.Get("key"),
		ContentType:   r.Header.Get("Content-Type"),
	}
	url, err := s.host.PutFile(r.Context(), r.PathValue("path"), contentFrom(body, queryBool(q.Get("binary"))), opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *server) lookupProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.host.LookupProfile(r.Context(), r.PathValue("username"), r.URL.Query().Get("lookupUrl"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type encryptRequest struct {
	Content string `json:"content"`
	// Encoding is "text" (default) or "base64".
	Encoding  string `json:"encoding,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
}

type decryptRequest struct {
	Cipher     cipher.CipherObject `json:"cipher"`
	PrivateKey string              `json:"privateKey,omitempty"`
}

type decryptResponse struct {
	Content  string `json:"content"`
	IsBinary bool   `json:"isBinary"`
}

func (s *server) encrypt(w http.ResponseWriter, r *http.Request) {
	var req encryptRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	content := bridge.Text(req.Content)
	if req.Encoding == wire.EncodingBase64 {
		raw, err := wire.DecodeBytes(req.Content)
		if err != nil {
			s.fail(w, fmt.Errorf("%w: content: %v", bridge.ErrInvalidArgument, err))
			return
		}
		content = bridge.Bytes(raw)
	}
	c, err := s.host.EncryptContent(r.Context(), content, wire.CryptoOptions{PublicKey: req.PublicKey}).Get()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) decrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	content, err := s.host.DecryptContent(r.Context(), req.Cipher, wire.CryptoOptions{PrivateKey: req.PrivateKey})
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := decryptResponse{Content: content.String(), IsBinary: content.IsBinary()}
	if content.IsBinary() {
		resp.Content = wire.EncodeBytes(content.Bytes())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor maps the bridge error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var opErr *bridge.OperationError
	var trErr *bridge.TransportError
	var fault *bridge.RuntimeFault
	switch {
	case errors.Is(err, bridge.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrNotReady), errors.Is(err, bridge.ErrClosed), errors.As(err, &fault):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &trErr):
		if trErr.Err != nil && trErr.Err.Code == wire.CodeBlocked {
			return http.StatusForbidden
		}
		return http.StatusBadGateway
	case errors.As(err, &opErr):
		switch opErr.Message {
		case "file not found", "name not found":
			return http.StatusNotFound
		case "not signed in":
			return http.StatusUnauthorized
		case "file too large":
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", bridge.ErrInvalidArgument, err)
	}
	return nil
}

func queryBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
