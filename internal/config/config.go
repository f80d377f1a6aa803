// ABOUTME: Configuration loading and parsing for finflow-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"
)

// Config represents the complete finflow-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"backend"`
	Frontend FrontendConfig `yaml:"frontend"`
	Database DatabaseConfig `yaml:"database"`
	Reaper   ReaperConfig   `yaml:"reaper"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds session and identity-provider configuration
type AuthConfig struct {
	// SessionSecret signs self-issued session tokens. The backend-of-record
	// shares it to accept the injected bearer credential.
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"-"`

	// OIDC identity provider for verify-token logins
	OIDCIssuerURL string `yaml:"oidc_issuer_url"`
	OIDCClientID  string `yaml:"oidc_client_id"`

	// DevIDPSecret switches the identity-token verifier to a shared-secret
	// HS256 implementation. Development and tests only.
	DevIDPSecret string `yaml:"dev_idp_secret"`

	// Raw string value for YAML unmarshaling
	SessionTTLRaw string `yaml:"session_ttl"`
}

// BackendConfig holds backend-of-record configuration
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// FrontendConfig holds the optional UI upstream that receives
// authorized browser traffic. When unset, page routes 404 past the Guard.
type FrontendConfig struct {
	UpstreamURL string `yaml:"upstream_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ReaperConfig holds expired-token reaper scheduling
type ReaperConfig struct {
	Interval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.HTTPAddr, validation.Required),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SessionSecret, validation.Required, validation.Length(16, 0)),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// At least one identity-provider verification mode must be configured
	if c.Auth.OIDCIssuerURL == "" && c.Auth.DevIDPSecret == "" {
		return fmt.Errorf("auth: either oidc_issuer_url or dev_idp_secret is required")
	}
	if c.Auth.OIDCIssuerURL != "" {
		if err := validation.ValidateStruct(&c.Auth,
			validation.Field(&c.Auth.OIDCIssuerURL, is.URL),
			validation.Field(&c.Auth.OIDCClientID, validation.Required),
		); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := validation.ValidateStruct(&c.Backend,
		validation.Field(&c.Backend.BaseURL, validation.Required, is.URL),
	); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	if c.Frontend.UpstreamURL != "" {
		if err := validation.Validate(c.Frontend.UpstreamURL, is.URL); err != nil {
			return fmt.Errorf("frontend.upstream_url: %w", err)
		}
	}

	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Path, validation.Required),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.SessionTTLRaw != "" {
		cfg.Auth.SessionTTL, err = time.ParseDuration(cfg.Auth.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Auth.SessionTTLRaw, err)
		}
	}

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Reaper.IntervalRaw != "" {
		cfg.Reaper.Interval, err = time.ParseDuration(cfg.Reaper.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reaper interval %q: %w", cfg.Reaper.IntervalRaw, err)
		}
	}

	return nil
}
