package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/stackbridge/bridge"
	"github.com/caffeineduck/stackbridge/config"
	"github.com/caffeineduck/stackbridge/language/javascript"
	"github.com/caffeineduck/stackbridge/storage"
	"github.com/caffeineduck/stackbridge/storage/bbolt"
	"github.com/caffeineduck/stackbridge/storage/memory"
	"github.com/caffeineduck/stackbridge/storage/sqlite"
)

// globalFlags holds the persistent flags. Empty values defer to the config
// file and environment.
type globalFlags struct {
	configPath string
	store      string
	storePath  string
	appDomain  string
	allowHosts []string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "stackbridge",
		Short: "Drive a decentralized-storage client bundle from the command line",
		Long: `stackbridge - Run the Blockstack client bundle in an embedded JavaScript
runtime and call its operations from the host.

The runtime has no network or storage of its own. The host performs every
HTTP request on its behalf (only to hosts allowed with --allow-host) and
persists the user session in a local store.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.StringVar(&g.store, "store", "", "Session store: memory, bbolt, sqlite (default bbolt)")
	pf.StringVar(&g.storePath, "store-path", "", "Session store file")
	pf.StringVar(&g.appDomain, "app-domain", "", "App domain passed to the runtime session")
	pf.StringSliceVar(&g.allowHosts, "allow-host", nil, "Allow HTTP to host (repeatable)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text, json")

	root.AddCommand(
		newSignInCmd(g),
		newSignOutCmd(g),
		newStatusCmd(g),
		newGetCmd(g),
		newPutCmd(g),
		newLookupCmd(g),
		newEncryptCmd(g),
		newDecryptCmd(g),
		newKeygenCmd(),
		newReplCmd(g),
		newServeCmd(g),
	)
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.store != "" {
		cfg.Store.Driver = g.store
	}
	if g.storePath != "" {
		cfg.Store.Path = g.storePath
	}
	if g.appDomain != "" {
		cfg.AppDomain = g.appDomain
	}
	if len(g.allowHosts) > 0 {
		cfg.Fetch.AllowedHosts = g.allowHosts
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverBolt, "":
		return bbolt.Open(cfg.Path)
	case config.DriverSQLite:
		return sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// session is one initialized host plus the store it owns.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  storage.Store
	host   *bridge.Host
}

func (g *globalFlags) open(ctx context.Context, stderr io.Writer, extra ...bridge.Option) (*session, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, stderr)

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := append(cfg.HostOptions(), bridge.WithLogger(logger))
	opts = append(opts, extra...)
	h := bridge.New(javascript.New(javascript.WithContext(ctx)), store, opts...)
	if err := h.Init(ctx); err != nil {
		h.Close()
		store.Close()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, store: store, host: h}, nil
}

func (s *session) Close() error {
	return errors.Join(s.host.Close(), s.store.Close())
}

// withHost runs fn against a freshly initialized host and closes it after.
func (g *globalFlags) withHost(cmd *cobra.Command, fn func(ctx context.Context, h *bridge.Host) error) error {
	ctx := cmd.Context()
	s, err := g.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s.host)
}

// contentFrom treats valid UTF-8 as text unless binary is forced.
func contentFrom(data []byte, binary bool) bridge.Content {
	if !binary && utf8.Valid(data) {
		return bridge.Text(string(data))
	}
	return bridge.Bytes(data)
}

// readInput returns the named file, stdin for "-" or no name, or the inline
// value when it is set.
func readInput(cmd *cobra.Command, inline, name string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if name == "" || name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}
