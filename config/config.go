// Package config provides configuration loading for the motion daemon.
// The cache and registry never read configuration storage themselves; all
// settings arrive as explicit parameters resolved here.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gomotion/internal/core"
)

// Config holds the daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Cache    CacheConfig    `yaml:"cache"`
	Registry RegistryConfig `yaml:"registry"`

	// ActiveProvider names the provider entry used for computations.
	ActiveProvider string `yaml:"active_provider"`

	// Providers maps provider names to their configuration blobs.
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	// TTLSeconds is the default entry lifetime.
	TTLSeconds int `yaml:"ttl_seconds"`

	// MaxSize bounds the number of cached entries.
	MaxSize int `yaml:"max_size"`

	// CleanupSeconds is the background sweep interval.
	CleanupSeconds int `yaml:"cleanup_seconds"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the durable storage backend for the cache.
type StoreConfig struct {
	// Type is one of "file", "sqlite", "redis", "postgresql", "mongodb".
	Type string `yaml:"type"`

	File     FileStoreConfig     `yaml:"file"`
	SQLite   SQLiteStoreConfig   `yaml:"sqlite"`
	Redis    RedisStoreConfig    `yaml:"redis"`
	Postgres PostgresStoreConfig `yaml:"postgresql"`
	Mongo    MongoStoreConfig    `yaml:"mongodb"`
}

// FileStoreConfig configures the JSON snapshot store.
type FileStoreConfig struct {
	Path string `yaml:"path"`
}

// SQLiteStoreConfig configures the embedded SQLite store.
type SQLiteStoreConfig struct {
	Path string `yaml:"path"`
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	URL        string `yaml:"url"`
	Key        string `yaml:"key"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// PostgresStoreConfig configures the PostgreSQL store.
type PostgresStoreConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoStoreConfig configures the MongoDB store.
type MongoStoreConfig struct {
	URL        string `yaml:"url"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// RegistryConfig holds provider registry housekeeping settings.
type RegistryConfig struct {
	// ReclaimSeconds is how often stale instances are reclaimed.
	// Zero disables reclamation.
	ReclaimSeconds int `yaml:"reclaim_seconds"`

	// MaxInstanceAgeSeconds is the age beyond which an instance is
	// considered stale.
	MaxInstanceAgeSeconds int `yaml:"max_instance_age_seconds"`
}

// ProviderConfig is one provider entry: a type plus its config blob.
// Unknown fields flow into Options and reach the provider untouched.
type ProviderConfig struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:",inline"`
}

// knownProviderEnvs maps well-known provider names to their environment
// variables. Env values always win over file values for the same name.
var knownProviderEnvs = []struct {
	name       string
	apiKeyEnv  string
	baseURLEnv string
}{
	{"openai", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	{"anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	{"ollama", "OLLAMA_API_KEY", "OLLAMA_BASE_URL"},
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           "8791",
			MetricsEnabled: true,
		},
		Logging: LoggingConfig{Level: "info"},
		Cache: CacheConfig{
			TTLSeconds:     3600,
			MaxSize:        100,
			CleanupSeconds: 300,
			Store: StoreConfig{
				Type: "file",
				File: FileStoreConfig{Path: ".cache/motions.json"},
			},
		},
		Registry: RegistryConfig{
			ReclaimSeconds:        600,
			MaxInstanceAgeSeconds: 3600,
		},
		Providers: make(map[string]ProviderConfig),
	}
}

// Load reads configuration from the given YAML file (optional) and the
// environment. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	// .env is optional and only used for local development
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Run on defaults + environment
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays well-known environment variables onto the loaded
// configuration, creating provider entries that exist only in the
// environment.
func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	for _, kp := range knownProviderEnvs {
		apiKey := os.Getenv(kp.apiKeyEnv)
		baseURL := os.Getenv(kp.baseURLEnv)
		if apiKey == "" && baseURL == "" {
			continue
		}

		p, ok := c.Providers[kp.name]
		if !ok {
			p = ProviderConfig{Type: kp.name}
		}
		if p.Options == nil {
			p.Options = make(map[string]any)
		}
		if apiKey != "" {
			p.Options["api_key"] = apiKey
		}
		if baseURL != "" {
			p.Options["base_url"] = baseURL
		}
		c.Providers[kp.name] = p
	}

	if v := os.Getenv("GOMOTION_ACTIVE_PROVIDER"); v != "" {
		c.ActiveProvider = v
	}
	if v := os.Getenv("GOMOTION_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("GOMOTION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	// An unset active provider with exactly one configured provider is
	// unambiguous; resolve it here rather than failing later.
	if c.ActiveProvider == "" && len(c.Providers) == 1 {
		for name := range c.Providers {
			c.ActiveProvider = name
		}
	}
}

// Validate checks bounds and cross-references. Invalid values surface as
// ConfigurationError; nothing is silently defaulted here.
func (c *Config) Validate() error {
	if c.Cache.TTLSeconds <= 0 {
		return core.NewConfigurationError("cache.ttl_seconds", "must be positive")
	}
	if c.Cache.MaxSize <= 0 {
		return core.NewConfigurationError("cache.max_size", "must be positive")
	}
	if c.ActiveProvider != "" {
		p, ok := c.Providers[c.ActiveProvider]
		if !ok {
			return core.NewConfigurationError("active_provider",
				fmt.Sprintf("%q is not a configured provider", c.ActiveProvider))
		}
		if p.Type == "" {
			return core.NewConfigurationError(
				fmt.Sprintf("providers.%s.type", c.ActiveProvider), "is required")
		}
	}
	return nil
}
