// ABOUTME: Configuration loading for the consultation client.
// ABOUTME: Loads TOML config from XDG path with environment variable expansion.

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the config file omits a value.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

type Config struct {
	API     APIConfig     `toml:"api"`
	Live    LiveConfig    `toml:"live"`
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig holds the HTTP history/CRUD API endpoint.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
}

// LiveConfig holds the live transport endpoint and timing.
type LiveConfig struct {
	URL string `toml:"url"`

	ConnectTimeout time.Duration `toml:"-"`

	// Raw string value for TOML unmarshaling
	ConnectTimeoutRaw string `toml:"connect_timeout"`
}

// AuthConfig holds the token source. The token itself is issued externally;
// this client only reads it.
type AuthConfig struct {
	TokenFile string `toml:"token_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Path returns the config file location.
// Priority: CONSULT_CONFIG env var > XDG_CONFIG_HOME/consult/client.toml > ~/.config/consult/client.toml
func Path() string {
	if envPath := os.Getenv("CONSULT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "client.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "consult", "client.toml")
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	cfg.Live.ConnectTimeout = DefaultConnectTimeout
	if cfg.Live.ConnectTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Live.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.Live.ConnectTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("connect_timeout must be positive, got %q", cfg.Live.ConnectTimeoutRaw)
		}
		cfg.Live.ConnectTimeout = d
	}
	return nil
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}

	if c.Live.URL == "" {
		return fmt.Errorf("live.url is required")
	}
	lu, err := url.Parse(c.Live.URL)
	if err != nil || (lu.Scheme != "ws" && lu.Scheme != "wss") {
		return fmt.Errorf("live.url must be a ws(s) URL, got %q", c.Live.URL)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
