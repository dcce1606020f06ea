package openapi

import "os"

// Config holds the metadata published in the generated API document.
// PublicURL, when set, replaces the mount path as the document's server URL,
// for deployments behind a reverse proxy.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	PublicURL   string `toml:"public_url"`
}

// ConfigEnv maps config fields to environment variable names for override injection.
type ConfigEnv struct {
	Title       string
	Description string
	PublicURL   string
}

// Finalize applies defaults and environment variable overrides.
func (c *Config) Finalize(env *ConfigEnv) error {
	if c.Title == "" {
		c.Title = "ECOS Evaluation API"
	}
	if c.Description == "" {
		c.Description = "Semi-automated grading of simulated oral clinical examinations against a scoring rubric."
	}
	if env != nil {
		overrideString(&c.Title, env.Title)
		overrideString(&c.Description, env.Description)
		overrideString(&c.PublicURL, env.PublicURL)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	mergeString(&c.Title, overlay.Title)
	mergeString(&c.Description, overlay.Description)
	mergeString(&c.PublicURL, overlay.PublicURL)
}

// ServerURL returns PublicURL when configured, otherwise basePath.
func (c *Config) ServerURL(basePath string) string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return basePath
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func overrideString(dst *string, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
