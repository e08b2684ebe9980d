// Copyright (c) Microsoft. All rights reserved.

package rpc

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/shadai-group/shadai/shadai"
)

// envPrefix is prepended to every variable name, e.g. SHADAI_API_KEY.
const envPrefix = "SHADAI"

// Config holds client configuration read from the environment.
type Config struct {
	APIKey  string        `envconfig:"API_KEY"`
	BaseURL string        `envconfig:"BASE_URL" default:"http://localhost"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"` // unary calls and first stream event

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error

	RateLimit float64 `envconfig:"RATE_LIMIT" default:"0"` // requests per second, 0 disables
	RateBurst int     `envconfig:"RATE_BURST" default:"1"`

	// TokenScope switches authentication to access tokens for this scope.
	TokenScope string `envconfig:"TOKEN_SCOPE"`
}

// LoadConfig reads configuration from the environment. It first loads the
// given .env files (".env" when none are given), ignoring files that do not exist.
func LoadConfig(files ...string) (*Config, error) {
	// Try to load .env files (ignore error if they don't exist)
	_ = godotenv.Load(files...)
	return LoadConfigFromEnv()
}

// LoadConfigFromEnv reads configuration from environment variables only.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, shadai.ConfigurationError("environment", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that a credential is configured and values are in range.
func (c *Config) Validate() error {
	if c.APIKey == "" && c.TokenScope == "" {
		return shadai.ConfigurationError(envPrefix+"_API_KEY", "an API key is required")
	}
	if c.Timeout < 0 {
		return shadai.ConfigurationError(envPrefix+"_TIMEOUT", "must not be negative")
	}
	if c.RateLimit < 0 {
		return shadai.ConfigurationError(envPrefix+"_RATE_LIMIT", "must not be negative")
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return shadai.ConfigurationError(envPrefix+"_LOG_LEVEL", err.Error())
	}
	return nil
}

// Options converts the configuration to client options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithBaseURL(c.BaseURL),
		WithTimeout(c.Timeout),
	}
	if c.RateLimit > 0 {
		opts = append(opts, WithRateLimit(c.RateLimit, c.RateBurst))
	}
	return opts
}

// NewLogger builds a production logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, shadai.ConfigurationError(envPrefix+"_LOG_LEVEL", err.Error())
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}

// NewFromConfig validates cfg and creates a [Client]. opts are applied after
// the options derived from cfg.
func NewFromConfig(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, shadai.ConfigurationError("config", "is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return New(cfg.APIKey, append(cfg.Options(), opts...)...), nil
}
