// Package config loads service configuration from TOML files and ECOS_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Algorithm-App/eval-med-app/pkg/database"
	"github.com/Algorithm-App/eval-med-app/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvEcosEnv             = "ECOS_ENV"
	EnvEcosConfig          = "ECOS_CONFIG"
	EnvEcosShutdownTimeout = "ECOS_SHUTDOWN_TIMEOUT"
	EnvEcosVersion         = "ECOS_VERSION"
	EnvEcosLogLevel        = "ECOS_LOG_LEVEL"
)

var databaseEnv = &database.Env{
	Driver:          "ECOS_DB_DRIVER",
	Path:            "ECOS_DB_PATH",
	Host:            "ECOS_DB_HOST",
	Port:            "ECOS_DB_PORT",
	Name:            "ECOS_DB_NAME",
	User:            "ECOS_DB_USER",
	Password:        "ECOS_DB_PASSWORD",
	SSLMode:         "ECOS_DB_SSL_MODE",
	MaxOpenConns:    "ECOS_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "ECOS_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "ECOS_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "ECOS_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "ECOS_STORAGE_CONTAINER_NAME",
	ConnectionString: "ECOS_STORAGE_CONNECTION_STRING",
	ServiceURL:       "ECOS_STORAGE_SERVICE_URL",
	MaxListSize:      "ECOS_STORAGE_MAX_LIST_SIZE",
}

// Config is the root configuration for the evaluation service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Agent           AgentConfig     `toml:"agent"`
	API             APIConfig       `toml:"api"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	LogLevel        string          `toml:"log_level"`
	Version         string          `toml:"version"`
}

// Env returns the ECOS_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvEcosEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. ECOS_CONFIG replaces the base file path.
// If no base file exists, defaults and environment variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	base := BaseConfigFile
	if v := os.Getenv(EnvEcosConfig); v != "" {
		base = v
	}

	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Agent.Merge(&overlay.Agent)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Agent.Finalize(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvEcosShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvEcosLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvEcosVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvEcosEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
