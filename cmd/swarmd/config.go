// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/swarmlabs/swarm/pkg/llm/openrouter"
)

// DefaultConfigFileName is the name of the config file (without extension).
const DefaultConfigFileName = "swarmd"

// Config holds all configuration for the Swarm server.
// Priority: CLI flags > config file > env vars > defaults
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// LLM upstream configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Database configuration (transcript persistence)
	Database DatabaseConfig `mapstructure:"database"`

	// Session configuration
	Session SessionConfig `mapstructure:"session"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LLMConfig holds OpenRouter upstream configuration.
type LLMConfig struct {
	// APIKey authenticates against OpenRouter. From CLI/env only; never
	// commit it to a config file.
	APIKey string `mapstructure:"api_key"`

	Model          string  `mapstructure:"model"`
	Endpoint       string  `mapstructure:"endpoint"`
	Referer        string  `mapstructure:"referer"`
	Title          string  `mapstructure:"title"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds upstream rate limiter settings.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstCapacity     int     `mapstructure:"burst_capacity"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// DatabaseConfig holds transcript store configuration.
type DatabaseConfig struct {
	// Path is the SQLite database path. Empty disables persistence.
	Path string `mapstructure:"path"`

	// EncryptionKey enables SQLCipher encryption. Requires a CGO build.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// SessionConfig holds streaming session settings.
type SessionConfig struct {
	// GracePeriodSeconds is how long a terminal session stays queryable
	// before eviction.
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig loads configuration from multiple sources with proper priority:
// 1. Command line flags (highest priority)
// 2. Config file
// 3. Environment variables
// 4. Defaults (lowest priority)
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in standard locations
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/swarm/")
		viper.SetConfigName(DefaultConfigFileName) // swarmd.yaml
		viper.SetConfigType("yaml")
	}

	// Read config file (if it exists)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	// Bind environment variables (SWARM_LLM_API_KEY, SWARM_SERVER_PORT, ...)
	viper.SetEnvPrefix("SWARM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8765)

	// LLM defaults
	viper.SetDefault("llm.model", openrouter.DefaultModel)
	viper.SetDefault("llm.endpoint", openrouter.DefaultEndpoint)
	viper.SetDefault("llm.referer", openrouter.DefaultReferer)
	viper.SetDefault("llm.title", openrouter.DefaultTitle)
	viper.SetDefault("llm.max_tokens", openrouter.DefaultMaxTokens)
	viper.SetDefault("llm.temperature", openrouter.DefaultTemperature)
	viper.SetDefault("llm.timeout_seconds", 120)
	viper.SetDefault("llm.rate_limit.enabled", true)
	viper.SetDefault("llm.rate_limit.requests_per_second", 5.0)
	viper.SetDefault("llm.rate_limit.burst_capacity", 10)
	viper.SetDefault("llm.rate_limit.max_retries", 3)

	// Database defaults (persistence off until a path is configured)
	viper.SetDefault("database.path", "")
	viper.SetDefault("database.encryption_key", "")

	// Session defaults
	viper.SetDefault("session.grace_period_seconds", 30)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("OpenRouter API key is required (set via --api-key or SWARM_LLM_API_KEY)")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm.timeout_seconds must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}

	if c.Session.GracePeriodSeconds < 0 {
		return fmt.Errorf("session.grace_period_seconds must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be json or console)", c.Logging.Format)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file.
func GenerateExampleConfig() string {
	return `# Swarm Server Configuration
# Priority: CLI flags > config file > environment variables > defaults

server:
  host: 0.0.0.0
  port: 8765

llm:
  # api_key: set via SWARM_LLM_API_KEY - NOT in config file
  model: openai/gpt-4o
  max_tokens: 2000
  temperature: 0.7
  timeout_seconds: 120
  rate_limit:
    enabled: true
    requests_per_second: 5.0
    burst_capacity: 10
    max_retries: 3

database:
  # path: ./swarm.db          # empty disables transcript persistence
  # encryption_key: ""        # SQLCipher key, CGO builds only

session:
  grace_period_seconds: 30

logging:
  level: info   # debug, info, warn, error
  format: json  # json, console
`
}
