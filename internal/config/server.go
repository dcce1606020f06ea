package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost              = "ECOS_SERVER_HOST"
	EnvServerPort              = "ECOS_SERVER_PORT"
	EnvServerReadHeaderTimeout = "ECOS_SERVER_READ_HEADER_TIMEOUT"
	EnvServerReadTimeout       = "ECOS_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout      = "ECOS_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout   = "ECOS_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP server parameters. Durations use time.ParseDuration syntax.
// WriteTimeout bounds a whole evaluation request, model calls included,
// so it defaults well above the agent timeout.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	ReadTimeout       string `toml:"read_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadHeaderTimeoutDuration returns ReadHeaderTimeout as a time.Duration.
func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration {
	return mustDuration(c.ReadHeaderTimeout)
}

// ReadTimeoutDuration returns ReadTimeout as a time.Duration.
func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	return mustDuration(c.ReadTimeout)
}

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (c *ServerConfig) WriteTimeoutDuration() time.Duration {
	return mustDuration(c.WriteTimeout)
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(c.ShutdownTimeout)
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	dst, src := c.durations(), overlay.durations()
	for i := range dst {
		if *src[i].value != "" {
			*dst[i].value = *src[i].value
		}
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	for _, d := range c.durations() {
		if *d.value == "" {
			*d.value = d.fallback
		}
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	for _, d := range c.durations() {
		if v := os.Getenv(d.env); v != "" {
			*d.value = v
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, d := range c.durations() {
		if _, err := time.ParseDuration(*d.value); err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}
	return nil
}

type durationField struct {
	key      string
	env      string
	fallback string
	value    *string
}

func (c *ServerConfig) durations() []durationField {
	return []durationField{
		{"read_header_timeout", EnvServerReadHeaderTimeout, "10s", &c.ReadHeaderTimeout},
		{"read_timeout", EnvServerReadTimeout, "1m", &c.ReadTimeout},
		{"write_timeout", EnvServerWriteTimeout, "5m", &c.WriteTimeout},
		{"shutdown_timeout", EnvServerShutdownTimeout, "30s", &c.ShutdownTimeout},
	}
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
