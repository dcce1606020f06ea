package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvAgentBaseURL            = "ECOS_AGENT_BASE_URL"
	EnvAgentModel              = "ECOS_AGENT_MODEL"
	EnvAgentTranscriptionModel = "ECOS_AGENT_TRANSCRIPTION_MODEL"
	EnvAgentLanguage           = "ECOS_AGENT_LANGUAGE"
	EnvAgentMaxTokens          = "ECOS_AGENT_MAX_TOKENS"
	EnvAgentTimeout            = "ECOS_AGENT_TIMEOUT"
	EnvAgentAPIKey             = "ECOS_AGENT_API_KEY"
	EnvAgentOrganization       = "ECOS_AGENT_ORGANIZATION"
	EnvAgentProject            = "ECOS_AGENT_PROJECT"
)

// AgentConfig holds settings for the reasoning and speech-to-text services.
// Credentials are read from the environment only and carry no toml tag.
type AgentConfig struct {
	BaseURL            string `toml:"base_url"`
	Model              string `toml:"model"`
	TranscriptionModel string `toml:"transcription_model"`
	Language           string `toml:"language"`
	MaxTokens          int    `toml:"max_tokens"`
	Timeout            string `toml:"timeout"`

	APIKey       string `toml:"-"`
	Organization string `toml:"-"`
	Project      string `toml:"-"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *AgentConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// EvaluationTimeoutDuration bounds one full evaluation: a transcription
// followed by a reasoning call, each limited by Timeout.
func (c *AgentConfig) EvaluationTimeoutDuration() time.Duration {
	return 2 * c.TimeoutDuration()
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AgentConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *AgentConfig) Merge(overlay *AgentConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.TranscriptionModel != "" {
		c.TranscriptionModel = overlay.TranscriptionModel
	}
	if overlay.Language != "" {
		c.Language = overlay.Language
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *AgentConfig) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = "whisper-1"
	}
	if c.Language == "" {
		c.Language = "fr"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1500
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
}

func (c *AgentConfig) loadEnv() {
	if v := os.Getenv(EnvAgentBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvAgentModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvAgentTranscriptionModel); v != "" {
		c.TranscriptionModel = v
	}
	if v := os.Getenv(EnvAgentLanguage); v != "" {
		c.Language = v
	}
	if v := os.Getenv(EnvAgentMaxTokens); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = n
		}
	}
	if v := os.Getenv(EnvAgentTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvAgentAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvAgentOrganization); v != "" {
		c.Organization = v
	}
	if v := os.Getenv(EnvAgentProject); v != "" {
		c.Project = v
	}
}

func (c *AgentConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens: %d", c.MaxTokens)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
