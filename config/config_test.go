package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stackbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, "https://core.blockstack.org/v1/names/", cfg.LookupURL)
	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, 60*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(1<<20), cfg.Fetch.MaxBodySize)
	assert.Equal(t, 8192, cfg.Fetch.MaxURLLength)
	assert.Equal(t, ":8080", cfg.Serve.Addr)

	// AppDomain has no default.
	assert.Error(t, cfg.Validate())
	cfg.AppDomain = "https://app.example"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
appDomain: https://app.example
callTimeout: 2s
store:
  driver: sqlite
  path: /tmp/session.sqlite
fetch:
  allowedHosts: [hub.example, core.example]
  rateLimit: 5
  burst: 2
serve:
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://app.example", cfg.AppDomain)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/session.sqlite", cfg.Store.Path)
	assert.Equal(t, []string{"hub.example", "core.example"}, cfg.Fetch.AllowedHosts)
	assert.Equal(t, 5.0, cfg.Fetch.RateLimit)
	assert.Equal(t, 2, cfg.Fetch.Burst)
	assert.Equal(t, "127.0.0.1:9000", cfg.Serve.Addr)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.ReplyTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "appDomain: https://file.example\nstore:\n  driver: memory\n")
	t.Setenv("STACKBRIDGE_APP_DOMAIN", "https://env.example")
	t.Setenv("STACKBRIDGE_STORE_DRIVER", "bbolt")
	t.Setenv("STACKBRIDGE_STORE_PATH", "/var/lib/stackbridge.db")
	t.Setenv("STACKBRIDGE_FETCH_ALLOWED_HOSTS", "a.example,b.example")
	t.Setenv("STACKBRIDGE_REPLY_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://env.example", cfg.AppDomain)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/stackbridge.db", cfg.Store.Path)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Fetch.AllowedHosts)
	assert.Equal(t, 90*time.Second, cfg.ReplyTimeout)
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("STACKBRIDGE_CALL_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"), err.Error())
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeFile(t, "store: [not, a, map]"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	base := Default()
	base.AppDomain = "https://app.example"

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad domain", func(c *Config) { c.AppDomain = "not a url" }, "AppDomain"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, "Driver"},
		{"bolt without path", func(c *Config) { c.Store.Path = "" }, "Path"},
		{"negative rate", func(c *Config) { c.Fetch.RateLimit = -1 }, "RateLimit"},
		{"zero body size", func(c *Config) { c.Fetch.MaxBodySize = 0 }, "MaxBodySize"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	memory := base
	memory.Store = StoreConfig{Driver: DriverMemory}
	assert.NoError(t, memory.Validate(), "memory store needs no path")
}

func TestHostOptions(t *testing.T) {
	cfg := Default()
	cfg.AppDomain = "https://app.example"
	cfg.Fetch.AllowedHosts = []string{"hub.example"}
	cfg.Store.Key = "alt"

	h := cfg.HTTP()
	assert.Equal(t, []string{"hub.example"}, h.AllowedHosts)
	assert.Equal(t, cfg.Fetch.Timeout, h.RequestTimeout)
	assert.Len(t, cfg.HostOptions(), 7)
}
