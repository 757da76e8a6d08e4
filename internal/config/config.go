// Package config handles TOML configuration loading with environment
// variable expansion and authoritative environment overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// PlaceholderJWTSecret is the sample value shipped in example configs.
// Startup refuses to run with it.
const PlaceholderJWTSecret = "change-me-in-production"

// Config is the top-level switchboard configuration.
type Config struct {
	Server   ServerConfig          `toml:"server"`
	Storage  StorageConfig         `toml:"storage"`
	Routing  RoutingConfig         `toml:"routing"`
	Codebase CodebaseConfig        `toml:"codebase"`
	API      APIConfig             `toml:"api"`
	Tools    map[string]ToolConfig `toml:"tools"`

	// Env-only settings, populated by applyEnv.
	JWTSecret       string  `toml:"-"`
	EncryptionKey   string  `toml:"-"`
	RedisURL        string  `toml:"-"`
	MobileAPIKey    string  `toml:"-"`
	ValidAPIKey     string  `toml:"-"`
	EnableCSRF      bool    `toml:"-"`
	Environment     string  `toml:"-"`
	LogLevel        string  `toml:"-"`
	LogFormat       string  `toml:"-"`
	BudgetUSD       float64 `toml:"-"`
	TraceEndpoint   string  `toml:"-"`
	TraceSampleRate float64 `toml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// StorageConfig selects and configures the persistence engine.
type StorageConfig struct {
	DBType           string `toml:"db_type"` // "sqlite" or "postgresql"
	DBPath           string `toml:"db_path"`
	ConnectionString string `toml:"connection_string"`
	IndexPath        string `toml:"index_path"`
}

// RoutingConfig is the rule table mapping task classes to ordered tool lists.
type RoutingConfig struct {
	DefaultTool string   `toml:"default_tool"`
	CodeEditing []string `toml:"code_editing"`
	Research    []string `toml:"research"`
	GeneralChat []string `toml:"general_chat"`
}

// Rules returns the class -> tools mapping consumed by the router.
func (r RoutingConfig) Rules() map[string][]string {
	return map[string][]string{
		"code_editing": r.CodeEditing,
		"research":     r.Research,
		"general_chat": r.GeneralChat,
	}
}

// CodebaseConfig configures the external indexer integration.
type CodebaseConfig struct {
	AutoIndex  bool     `toml:"auto_index"`
	WatchPaths []string `toml:"watch_paths"`
	IndexDepth int      `toml:"index_depth"`
}

// APIConfig holds public API settings.
type APIConfig struct {
	EnableMobile       bool     `toml:"enable_mobile"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
	// ToolRateLimitPerMinute caps requests sent to each provider.
	// Zero disables the upstream gate.
	ToolRateLimitPerMinute int `toml:"tool_rate_limit_per_minute"`
}

// ToolConfig configures one provider adapter.
type ToolConfig struct {
	Enabled   *bool  `toml:"enabled"`
	APIKeyEnv string `toml:"api_key_env"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
}

// IsEnabled reports whether the tool is enabled (defaults to true when nil).
func (t ToolConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// ResolvedAPIKey returns the configured key, preferring the env var named
// by api_key_env over the inline api_key value.
func (t ToolConfig) ResolvedAPIKey() string {
	if t.APIKeyEnv != "" {
		if v := os.Getenv(t.APIKeyEnv); v != "" {
			return v
		}
	}
	return t.APIKey
}

// duration wraps time.Duration for TOML string values like "30s".
type duration struct{ time.Duration }

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a TOML config file, expanding ${VAR} references
// and applying environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			data = expandEnv(data)
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     duration{30 * time.Second},
			WriteTimeout:    duration{180 * time.Second},
			ShutdownTimeout: duration{30 * time.Second},
		},
		Storage: StorageConfig{
			DBType: "sqlite",
			DBPath: "switchboard.db",
		},
		Routing: RoutingConfig{
			DefaultTool: "claude",
			CodeEditing: []string{"claude", "gpt"},
			Research:    []string{"perplexity", "claude"},
			GeneralChat: []string{"claude", "gpt"},
		},
		API: APIConfig{
			RateLimitPerMinute: 60,
		},
		Environment:     "development",
		LogLevel:        "info",
		LogFormat:       "text",
		TraceSampleRate: 0.1,
	}
}

// applyEnv copies authoritative environment overrides into the config.
func (c *Config) applyEnv() {
	c.JWTSecret = os.Getenv("JWT_SECRET_KEY")
	c.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	c.RedisURL = os.Getenv("REDIS_URL")
	c.MobileAPIKey = os.Getenv("MOBILE_API_KEY")
	c.ValidAPIKey = os.Getenv("VALID_API_KEY")
	if v := os.Getenv("ENABLE_CSRF"); v != "" {
		c.EnableCSRF, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("MONTHLY_BUDGET_USD"); v != "" {
		c.BudgetUSD, _ = strconv.ParseFloat(v, 64)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.TraceEndpoint = v
	}
	if v := os.Getenv("TRACE_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TraceSampleRate = f
		}
	}
}

// Validate rejects configurations that must not reach production:
// a missing or placeholder JWT secret and an unknown storage engine.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY must be set")
	}
	if c.JWTSecret == PlaceholderJWTSecret {
		return fmt.Errorf("JWT_SECRET_KEY is the placeholder value; set a real secret")
	}
	switch c.Storage.DBType {
	case "sqlite", "postgresql":
	default:
		return fmt.Errorf("unknown db_type %q", c.Storage.DBType)
	}
	return nil
}

// Development reports whether the deployment runs in development mode.
// Wildcard CORS origins are only honored in development.
func (c *Config) Development() bool {
	return c.Environment == "development"
}
