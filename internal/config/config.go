// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds the server configuration.
type Config struct {
	Host string `env:"CHAT_HOST"`
	Port int    `env:"CHAT_PORT" default:"8080"`

	// HTTPPort serves /ws, / and /metrics. Empty disables the HTTP surface.
	HTTPPort       string `env:"HTTP_PORT" default:"8081"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" default:"http://localhost:8081"`

	MaxLineBytes     int           `env:"MAX_LINE_BYTES" default:"65536"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" default:"0s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" default:"0s"`

	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" default:"0"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL" default:"1s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads .env (if present) and the process environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("CHAT_PORT must be between 0 and 65535, got %d", c.Port)
	}
	if c.HTTPPort != "" {
		p, err := strconv.Atoi(c.HTTPPort)
		if err != nil || p < 0 || p > 65535 {
			return fmt.Errorf("HTTP_PORT must be a port number, got %q", c.HTTPPort)
		}
	}
	if c.MaxLineBytes <= 0 {
		return errors.New("MAX_LINE_BYTES must be positive")
	}
	if c.HandshakeTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.RateLimitBurst < 0 {
		return errors.New("RATE_LIMIT_BURST must not be negative")
	}
	if c.RateLimitBurst > 0 && c.RateLimitInterval <= 0 {
		return errors.New("RATE_LIMIT_INTERVAL must be positive when rate limiting is enabled")
	}
	return nil
}

// ChatAddr is the TCP listen address for chat clients.
func (c *Config) ChatAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTPAddr is the listen address of the HTTP surface, or "" when disabled.
func (c *Config) HTTPAddr() string {
	if c.HTTPPort == "" {
		return ""
	}
	return net.JoinHostPort(c.Host, c.HTTPPort)
}

// Origins splits AllowedOrigins on commas.
func (c *Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
