package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Algorithm-App/eval-med-app/pkg/formatting"
	"github.com/Algorithm-App/eval-med-app/pkg/middleware"
	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
	"github.com/Algorithm-App/eval-med-app/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "ECOS_CORS_ENABLED",
	Origins:          "ECOS_CORS_ORIGINS",
	AllowedMethods:   "ECOS_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "ECOS_CORS_ALLOWED_HEADERS",
	ExposedHeaders:   "ECOS_CORS_EXPOSED_HEADERS",
	AllowCredentials: "ECOS_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "ECOS_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "ECOS_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "ECOS_PAGINATION_MAX_PAGE_SIZE",
}

var openAPIEnv = &openapi.ConfigEnv{
	Title:       "ECOS_OPENAPI_TITLE",
	Description: "ECOS_OPENAPI_DESCRIPTION",
	PublicURL:   "ECOS_OPENAPI_PUBLIC_URL",
}

// APIConfig holds API routing, upload limits, CORS, pagination, and API document settings.
type APIConfig struct {
	BasePath        string                `toml:"base_path"`
	MaxUploadSize   string                `toml:"max_upload_size"`
	StrictStudentID bool                  `toml:"strict_student_id"`
	CORS            middleware.CORSConfig `toml:"cors"`
	Pagination      pagination.Config     `toml:"pagination"`
	OpenAPI         openapi.Config        `toml:"openapi"`
}

// MaxUploadSizeBytes returns MaxUploadSize in bytes.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 25 * 1024 * 1024
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.OpenAPI.Finalize(openAPIEnv); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	if overlay.StrictStudentID {
		c.StrictStudentID = true
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		// Whisper rejects uploads above 25MB.
		c.MaxUploadSize = "25MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("ECOS_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("ECOS_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
	if v := os.Getenv("ECOS_API_STRICT_STUDENT_ID"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.StrictStudentID = b
		}
	}
}
