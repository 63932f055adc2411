package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the serve directory.
const FileName = "codepad.yaml"

// Config represents the codepad configuration
type Config struct {
	Title     string          `yaml:"title"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Rebuild   RebuildConfig   `yaml:"rebuild"`
	Console   ConsoleConfig   `yaml:"console"`
	Preview   PreviewConfig   `yaml:"preview"`
	API       *APIConfig      `yaml:"api,omitempty"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// StoreConfig selects where buffer texts are persisted
type StoreConfig struct {
	Driver string `yaml:"driver"`           // "memory", "sqlite", "redis", "postgres" or "dir"
	Path   string `yaml:"path,omitempty"`   // For sqlite: database file. For dir: workspace directory
	URL    string `yaml:"url,omitempty"`    // For redis/postgres: connection URL (env vars expanded)
	Table  string `yaml:"table,omitempty"`  // For sqlite/postgres: table name (default: codepad_kv)
	Prefix string `yaml:"prefix,omitempty"` // For redis: key prefix (default: codepad:)
}

// GetURL returns the connection URL with environment variables expanded
func (c StoreConfig) GetURL() string {
	return os.ExpandEnv(c.URL)
}

// WorkspaceConfig configures directory mode, where buffers mirror files on disk
type WorkspaceConfig struct {
	Dir   string `yaml:"dir,omitempty"` // Directory holding index.html, style.css and script.js
	Watch bool   `yaml:"watch"`         // Turn external file edits into buffer changes
}

// IsEnabled returns true if buffers are mirrored to a directory
func (c WorkspaceConfig) IsEnabled() bool {
	return c.Dir != ""
}

// RebuildConfig configures the rebuild trigger
type RebuildConfig struct {
	Debounce string `yaml:"debounce,omitempty"` // Coalesce window (e.g., "150ms"). Default: none
}

// GetDebounce returns the debounce window (default: 0, rebuild on every change)
func (c RebuildConfig) GetDebounce() time.Duration {
	if c.Debounce == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ConsoleConfig configures the console panel
type ConsoleConfig struct {
	MaxEntries int  `yaml:"max_entries,omitempty"` // Entries kept per revision (default: 1000, -1: unbounded)
	KeepStale  bool `yaml:"keep_stale"`            // Keep diagnostics from discarded revisions
}

// GetMaxEntries returns the panel bound (default: 1000). Zero means the
// panel keeps every entry.
func (c ConsoleConfig) GetMaxEntries() int {
	switch {
	case c.MaxEntries < 0:
		return 0
	case c.MaxEntries == 0:
		return 1000
	default:
		return c.MaxEntries
	}
}

// PreviewConfig configures where documents are rendered
type PreviewConfig struct {
	Mode      string `yaml:"mode,omitempty"`       // "browser" (default) or "headless"
	ChromeURL string `yaml:"chrome_url,omitempty"` // For headless: remote Chrome debugging URL
	Timeout   string `yaml:"timeout,omitempty"`    // For headless: render timeout. Default: 10s
	CacheTTL  string `yaml:"cache_ttl,omitempty"`  // How long past revisions stay retrievable. Default: 10m
}

// IsHeadless returns true if documents are rendered in headless Chrome
func (c PreviewConfig) IsHeadless() bool {
	return c.Mode == "headless"
}

// GetTimeout returns the headless render timeout (default: 10s)
func (c PreviewConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 10*time.Second)
}

// GetCacheTTL returns the document cache TTL (default: 10m)
func (c PreviewConfig) GetCacheTTL() time.Duration {
	return parseDurationOr(c.CacheTTL, 10*time.Minute)
}

// APIConfig holds REST API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Auth      *AuthConfig      `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration for the API
type AuthConfig struct {
	// APIKey is the required API key for authentication.
	// Supports environment variable expansion (e.g., "${API_KEY}" or "$API_KEY")
	APIKey string `yaml:"api_key,omitempty"`
	// HeaderName is the HTTP header name for the API key (default: "X-API-Key")
	// Also supports "Authorization: Bearer <token>" format when set to "Authorization"
	HeaderName string `yaml:"header_name,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 10)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 20)
	MaxTrackedIPs     int     `yaml:"max_tracked_ips,omitempty"`     // Per-IP limiters kept before LRU eviction (default: 10000)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetMaxTrackedIPs returns how many client IPs are tracked (default: 10000)
func (c *APIConfig) GetMaxTrackedIPs() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.RateLimit.MaxTrackedIPs
}

// IsAuthEnabled returns true if API authentication is configured
func (c *APIConfig) IsAuthEnabled() bool {
	if c == nil || c.Auth == nil {
		return false
	}
	return c.Auth.GetAPIKey() != ""
}

// GetAPIKey returns the configured API key with environment variable expansion
func (c *AuthConfig) GetAPIKey() string {
	if c == nil || c.APIKey == "" {
		return ""
	}
	return os.ExpandEnv(c.APIKey)
}

// GetHeaderName returns the header name for authentication (default: "X-API-Key")
func (c *AuthConfig) GetHeaderName() string {
	if c == nil || c.HeaderName == "" {
		return "X-API-Key"
	}
	return c.HeaderName
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "codepad",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "codepad.db",
		},
		Console: ConsoleConfig{
			MaxEntries: 1000,
		},
		Preview: PreviewConfig{
			Mode: "browser",
		},
	}
}

// Validate checks settings that would otherwise fail later at startup
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", "memory", "sqlite", "dir":
	case "redis", "postgres", "pg":
		if c.Store.GetURL() == "" {
			return fmt.Errorf("store driver %q requires store.url", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Preview.Mode {
	case "", "browser", "headless":
	default:
		return fmt.Errorf("unknown preview mode %q", c.Preview.Mode)
	}

	if c.Rebuild.Debounce != "" {
		if _, err := time.ParseDuration(c.Rebuild.Debounce); err != nil {
			return fmt.Errorf("invalid rebuild.debounce %q: %w", c.Rebuild.Debounce, err)
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// Load loads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir loads codepad.yaml from dir, falling back to defaults.
// Relative store and workspace paths are resolved against dir.
func LoadFromDir(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)
	return cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(dir, c.Store.Path)
	}
	if c.Workspace.Dir != "" && !filepath.IsAbs(c.Workspace.Dir) {
		c.Workspace.Dir = filepath.Join(dir, c.Workspace.Dir)
	}
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
