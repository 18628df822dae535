// Gateway configuration loading.
//
// DESIGN: A single YAML file describes providers, stores and collaborator
// endpoints. ${VAR} references are expanded from the environment before
// parsing so secrets stay out of the file. cmd/gateway loads .env first via
// godotenv, so a local .env is enough for development.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Aliases         map[string]string         `yaml:"aliases"`
	Dispatch        DispatchConfig            `yaml:"dispatch"`
	Cache           CacheConfig               `yaml:"cache"`
	Limits          LimitsConfig              `yaml:"limits"`
	Search          SearchConfig              `yaml:"search"`
	Billing         BillingConfig             `yaml:"billing"`
	Storage         StorageConfig             `yaml:"storage"`
	DatabasePath    string                    `yaml:"database_path"`
	LogLevel        string                    `yaml:"log_level"`
}

// ProviderConfig describes one LLM vendor endpoint and its fallback chain.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Models  []string      `yaml:"models"`  // ordered fallback list
	Dialect string        `yaml:"dialect"` // streaming wire dialect: "sse" or "chunked_json"
	Timeout time.Duration `yaml:"timeout"`
}

// DispatchConfig tunes fallback and backoff behavior.
type DispatchConfig struct {
	BackoffBase     time.Duration `yaml:"backoff_base"`
	MaxAttempts     int           `yaml:"max_attempts"`
	SystemPromptTTL time.Duration `yaml:"system_prompt_ttl"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
}

// CacheConfig selects and tunes the response-cache store.
type CacheConfig struct {
	Backend   string        `yaml:"backend"` // "sqlite" (default) or "redis"
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
	Secret    string        `yaml:"secret"` // scoping prefix mixed into prompt hashes
}

// LimitsConfig tunes the model-limits resolver.
type LimitsConfig struct {
	TTL time.Duration `yaml:"ttl"` // zero = process lifetime
}

// SearchConfig describes the web-search collaborator.
type SearchConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// BillingConfig describes the usage-logging collaborator.
type BillingConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig describes the object-storage collaborator.
type StorageConfig struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses the YAML config at path, expanding ${VAR} references
// from the environment and applying defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := envRefPattern.ReplaceAllStringFunc(string(raw), func(ref string) string {
		return os.Getenv(envRefPattern.FindStringSubmatch(ref)[1])
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = "gemini"
	}
	if c.Dispatch.BackoffBase == 0 {
		c.Dispatch.BackoffBase = DefaultBackoffBase
	}
	if c.Dispatch.MaxAttempts == 0 {
		c.Dispatch.MaxAttempts = DefaultMaxBackoffAttempts
	}
	if c.Dispatch.SystemPromptTTL == 0 {
		c.Dispatch.SystemPromptTTL = DefaultSystemPromptTTL
	}
	if c.Dispatch.IdleTimeout == 0 {
		c.Dispatch.IdleTimeout = DefaultStreamIdleTimeout
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "sqlite"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = DefaultSearchTimeout
	}
	if c.Billing.Timeout == 0 {
		c.Billing.Timeout = DefaultBillingTimeout
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "gateway.db"
	}
	for name, p := range c.Providers {
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
			c.Providers[name] = p
		}
	}
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider must be configured")
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return fmt.Errorf("config: default provider %q is not configured", c.DefaultProvider)
	}
	for name, p := range c.Providers {
		if len(p.Models) == 0 {
			return fmt.Errorf("config: provider %q has an empty model fallback list", name)
		}
		switch p.Dialect {
		case "sse", "chunked_json":
		default:
			return fmt.Errorf("config: provider %q has unknown dialect %q", name, p.Dialect)
		}
	}
	return nil
}
