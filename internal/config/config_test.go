package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.False(t, cfg.Preview.IsHeadless())
	assert.False(t, cfg.Workspace.IsEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestRebuildGetDebounce(t *testing.T) {
	tests := []struct {
		name     string
		debounce string
		expected time.Duration
	}{
		{"unset", "", 0},
		{"invalid", "soon", 0},
		{"negative", "-5ms", 0},
		{"150ms", "150ms", 150 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RebuildConfig{Debounce: tt.debounce}
			if got := cfg.GetDebounce(); got != tt.expected {
				t.Errorf("GetDebounce() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPreviewDefaults(t *testing.T) {
	var cfg PreviewConfig
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetCacheTTL())

	cfg = PreviewConfig{Timeout: "2s", CacheTTL: "bogus"}
	assert.Equal(t, 2*time.Second, cfg.GetTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetCacheTTL())
}

func TestConsoleGetMaxEntries(t *testing.T) {
	assert.Equal(t, 1000, ConsoleConfig{}.GetMaxEntries())
	assert.Equal(t, 50, ConsoleConfig{MaxEntries: 50}.GetMaxEntries())
	assert.Equal(t, 0, ConsoleConfig{MaxEntries: -1}.GetMaxEntries(), "unbounded")
}

func TestAPIConfigDefaults(t *testing.T) {
	var api *APIConfig
	assert.Nil(t, api.GetCORSOrigins())
	assert.Equal(t, 10.0, api.GetRateLimitRPS())
	assert.Equal(t, 20, api.GetRateLimitBurst())
	assert.Equal(t, 10000, api.GetMaxTrackedIPs())
	assert.False(t, api.IsAuthEnabled())

	limited := &APIConfig{RateLimit: &RateLimitConfig{MaxTrackedIPs: 500}}
	assert.Equal(t, 500, limited.GetMaxTrackedIPs())

	t.Setenv("CODEPAD_TEST_KEY", "secret")
	api = &APIConfig{Auth: &AuthConfig{APIKey: "${CODEPAD_TEST_KEY}"}}
	assert.True(t, api.IsAuthEnabled())
	assert.Equal(t, "secret", api.Auth.GetAPIKey())
	assert.Equal(t, "X-API-Key", api.Auth.GetHeaderName())
}

func TestStoreGetURLExpandsEnv(t *testing.T) {
	t.Setenv("CODEPAD_TEST_REDIS", "redis://localhost:6379/1")
	cfg := StoreConfig{Driver: "redis", URL: "$CODEPAD_TEST_REDIS"}
	assert.Equal(t, "redis://localhost:6379/1", cfg.GetURL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, true},
		{"redis without url", func(c *Config) { c.Store.Driver = "redis" }, true},
		{"redis with url", func(c *Config) { c.Store = StoreConfig{Driver: "redis", URL: "redis://x"} }, false},
		{"unknown preview mode", func(c *Config) { c.Preview.Mode = "vr" }, true},
		{"bad debounce", func(c *Config) { c.Rebuild.Debounce = "fast" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	yaml := `title: Scratch
server:
  port: 9090
store:
  driver: dir
  path: work
workspace:
  dir: work
  watch: true
rebuild:
  debounce: 100ms
console:
  max_entries: 200
  keep_stale: true
preview:
  mode: headless
  chrome_url: http://localhost:9222
api:
  rate_limit:
    requests_per_second: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "Scratch", cfg.Title)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host, "unset fields keep defaults")
	assert.Equal(t, "dir", cfg.Store.Driver)
	assert.Equal(t, filepath.Join(dir, "work"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(dir, "work"), cfg.Workspace.Dir)
	assert.True(t, cfg.Workspace.Watch)
	assert.Equal(t, 100*time.Millisecond, cfg.Rebuild.GetDebounce())
	assert.Equal(t, 200, cfg.Console.GetMaxEntries())
	assert.True(t, cfg.Console.KeepStale)
	assert.True(t, cfg.Preview.IsHeadless())
	assert.Equal(t, 5.0, cfg.API.GetRateLimitRPS())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: floppy\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Title = "Saved"
	cfg.Rebuild.Debounce = "50ms"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Saved", loaded.Title)
	assert.Equal(t, 50*time.Millisecond, loaded.Rebuild.GetDebounce())
}
