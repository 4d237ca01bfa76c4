package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Breaker   BreakerConfig
	Sniff     SniffConfig
	Fetch     FetchConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// SandboxConfig bounds execution contexts.
type SandboxConfig struct {
	MaxContexts    int           `envconfig:"SANDBOX_MAX_CONTEXTS" default:"16"`
	AcquireTimeout time.Duration `envconfig:"SANDBOX_ACQUIRE_TIMEOUT" default:"5s"`
	Timeout        time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"30s"`
	PreReadyBuffer int           `envconfig:"SANDBOX_PRE_READY_BUFFER" default:"10"`
	MaxCallStack   int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	EnableConsole  bool          `envconfig:"SANDBOX_CONSOLE" default:"true"`
	CloseGrace     time.Duration `envconfig:"SANDBOX_CLOSE_GRACE" default:"1s"`
	Retain         time.Duration `envconfig:"SANDBOX_RETAIN" default:"1m"` // Gone contexts stay listed this long
}

// BreakerConfig holds the spawn circuit breaker settings.
type BreakerConfig struct {
	MaxFaults int           `envconfig:"BREAKER_MAX_FAULTS" default:"5"`
	Timeout   time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

// SniffConfig points at extra signature tables.
type SniffConfig struct {
	Signatures string `envconfig:"SNIFF_SIGNATURES"`
}

// FetchConfig controls the fetch host method.
type FetchConfig struct {
	Enabled  bool          `envconfig:"FETCH_ENABLED" default:"false"`
	Allow    []string      `envconfig:"FETCH_ALLOW"`
	Timeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
	MaxBytes int64         `envconfig:"FETCH_MAX_BYTES" default:"1048576"`
	Retries  int           `envconfig:"FETCH_RETRIES" default:"2"`
	RPS      float64       `envconfig:"FETCH_RPS" default:"10"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the supervisor cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Sandbox.MaxContexts <= 0:
		return fmt.Errorf("SANDBOX_MAX_CONTEXTS must be positive, got %d", c.Sandbox.MaxContexts)
	case c.Sandbox.PreReadyBuffer <= 0:
		return fmt.Errorf("SANDBOX_PRE_READY_BUFFER must be positive, got %d", c.Sandbox.PreReadyBuffer)
	case c.Breaker.MaxFaults <= 0:
		return fmt.Errorf("BREAKER_MAX_FAULTS must be positive, got %d", c.Breaker.MaxFaults)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Sandbox: SandboxConfig{
			MaxContexts:    16,
			AcquireTimeout: 5 * time.Second,
			Timeout:        30 * time.Second,
			PreReadyBuffer: 10,
			MaxCallStack:   1024,
			EnableConsole:  true,
			CloseGrace:     time.Second,
			Retain:         time.Minute,
		},
		Breaker: BreakerConfig{
			MaxFaults: 5,
			Timeout:   30 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:  10 * time.Second,
			MaxBytes: 1 << 20,
			Retries:  2,
			RPS:      10,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
