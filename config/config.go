// Package config loads the settings of the stackbridge command.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// STACKBRIDGE_* environment variables. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/stackbridge/bridge"
	"github.com/caffeineduck/stackbridge/hostfunc"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STACKBRIDGE_"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverBolt   = "bbolt"
	DriverSQLite = "sqlite"
)

type Config struct {
	AppDomain    string        `yaml:"appDomain" env:"APP_DOMAIN" validate:"required,url"`
	LookupURL    string        `yaml:"lookupUrl" env:"LOOKUP_URL" validate:"required,url"`
	CallTimeout  time.Duration `yaml:"callTimeout" env:"CALL_TIMEOUT" validate:"gte=0"`
	ReplyTimeout time.Duration `yaml:"replyTimeout" env:"REPLY_TIMEOUT" validate:"gte=0"`

	Store StoreConfig `yaml:"store" envPrefix:"STORE_"`
	Fetch FetchConfig `yaml:"fetch" envPrefix:"FETCH_"`
	Serve ServeConfig `yaml:"serve" envPrefix:"SERVE_"`
	Log   LogConfig   `yaml:"log" envPrefix:"LOG_"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=memory bbolt sqlite"`
	Path   string `yaml:"path" env:"PATH" validate:"required_unless=Driver memory"`
	// Key names the session entry inside the store.
	Key string `yaml:"key" env:"KEY"`
}

type FetchConfig struct {
	AllowedHosts []string      `yaml:"allowedHosts" env:"ALLOWED_HOSTS" envSeparator:","`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	MaxBodySize  int64         `yaml:"maxBodySize" env:"MAX_BODY_SIZE" validate:"gt=0"`
	MaxURLLength int           `yaml:"maxUrlLength" env:"MAX_URL_LENGTH" validate:"gt=0"`
	// RateLimit is requests per second per host; zero disables it.
	RateLimit float64 `yaml:"rateLimit" env:"RATE_LIMIT" validate:"gte=0"`
	Burst     int     `yaml:"burst" env:"BURST" validate:"gte=0"`
}

type ServeConfig struct {
	Addr string `yaml:"addr" env:"ADDR" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LookupURL:    bridge.DefaultLookupURL,
		CallTimeout:  bridge.DefaultCallTimeout,
		ReplyTimeout: bridge.DefaultReplyTimeout,
		Store: StoreConfig{
			Driver: DriverBolt,
			Path:   "stackbridge.db",
		},
		Fetch: FetchConfig{
			Timeout:      hostfunc.DefaultRequestTimeout,
			MaxBodySize:  hostfunc.DefaultMaxBodySize,
			MaxURLLength: hostfunc.DefaultMaxURLLength,
		},
		Serve: ServeConfig{Addr: ":8080"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. It does not validate; callers apply
// their own overrides first and then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ParseEnv overlays STACKBRIDGE_* variables onto target. Unset variables
// leave fields untouched.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// HTTP returns the fetch proxy's HTTP settings.
func (c Config) HTTP() hostfunc.HTTPConfig {
	return hostfunc.HTTPConfig{
		AllowedHosts:   c.Fetch.AllowedHosts,
		MaxBodySize:    c.Fetch.MaxBodySize,
		MaxURLLength:   c.Fetch.MaxURLLength,
		RequestTimeout: c.Fetch.Timeout,
	}
}

// HostOptions translates c into bridge options.
func (c Config) HostOptions() []bridge.Option {
	opts := []bridge.Option{
		bridge.WithAppDomain(c.AppDomain),
		bridge.WithLookupURL(c.LookupURL),
		bridge.WithHTTP(c.HTTP()),
		bridge.WithFetchRateLimit(c.Fetch.RateLimit, c.Fetch.Burst),
		bridge.WithCallTimeout(c.CallTimeout),
		bridge.WithReplyTimeout(c.ReplyTimeout),
	}
	if c.Store.Key != "" {
		opts = append(opts, bridge.WithSessionKey(c.Store.Key))
	}
	return opts
}
