// Package config provides configuration loading for foliod.
//
// Configuration is loaded from an optional YAML file overridden by
// environment variables. Credentials are typed as Secret so they never
// leak through logs or serialized snapshots.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete foliod configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	GitHub     GitHubConfig     `koanf:"github"`
	OpenRouter OpenRouterConfig `koanf:"openrouter"`
	Cache      CacheConfig      `koanf:"cache"`
	Corpus     CorpusConfig     `koanf:"corpus"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// GitHubConfig holds GitHub API access configuration.
type GitHubConfig struct {
	// Token is the personal access token. Without it the client runs
	// unauthenticated and cannot resolve the account owner implicitly.
	Token Secret `koanf:"token"`

	// Owner overrides the lazily resolved authenticated login.
	Owner string `koanf:"owner"`
}

// OpenRouterConfig holds summarization API configuration.
//
// Any OpenAI-compatible chat completions endpoint works; OpenRouter is
// the default.
type OpenRouterConfig struct {
	APIKey       Secret   `koanf:"api_key"`
	BaseURL      string   `koanf:"base_url"`
	SummaryModel string   `koanf:"summary_model"`
	MaxAttempts  int      `koanf:"max_attempts"`
	BaseDelay    Duration `koanf:"base_delay"`
}

// CacheConfig holds snapshot persistence configuration.
type CacheConfig struct {
	// Dir is the data directory holding cache.json, summaries.json,
	// profile.yaml, thesis.yaml and the media/ subdirectory.
	Dir string `koanf:"dir"`

	// TTL is the freshness window after which a snapshot is stale.
	TTL Duration `koanf:"ttl"`
}

// CorpusConfig holds code-corpus fallback configuration.
type CorpusConfig struct {
	TokenLimit int `koanf:"token_limit"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.OpenRouter.BaseURL == "" {
		cfg.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.OpenRouter.SummaryModel == "" {
		cfg.OpenRouter.SummaryModel = "google/gemma-3-27b-it:free"
	}
	if cfg.OpenRouter.MaxAttempts == 0 {
		cfg.OpenRouter.MaxAttempts = 3
	}
	if cfg.OpenRouter.BaseDelay == 0 {
		cfg.OpenRouter.BaseDelay = Duration(2 * time.Second)
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "static"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(24 * time.Hour)
	}

	if cfg.Corpus.TokenLimit == 0 {
		cfg.Corpus.TokenLimit = 100_000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.OpenRouter.MaxAttempts < 1 {
		return fmt.Errorf("openrouter max_attempts must be positive: %d", c.OpenRouter.MaxAttempts)
	}
	if c.Corpus.TokenLimit < 1 {
		return fmt.Errorf("corpus token_limit must be positive: %d", c.Corpus.TokenLimit)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("unknown logging format: %q", c.Logging.Format)
	}
	return nil
}
