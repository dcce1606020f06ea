// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, model services)
// that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/migrations"
	"github.com/Algorithm-App/eval-med-app/pkg/database"
	"github.com/Algorithm-App/eval-med-app/pkg/lifecycle"
	"github.com/Algorithm-App/eval-med-app/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Storage is nil when no storage account is configured.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Agent     agent.Client
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := NewLogger(cfg.LogLevel)

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	var store storage.System
	if cfg.Storage.Enabled() {
		store, err = storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
	} else {
		logger.Info("storage not configured, recordings will not be archived")
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Agent:     agent.New(&cfg.Agent, nil, logger),
	}, nil
}

// NewLogger creates the process logger writing text records to stderr at level.
// Unknown levels fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Start applies schema migrations and registers all infrastructure systems
// with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if err := migrations.Up(i.Database.Connection(), i.Database.Driver()); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	i.Logger.Info("schema up to date", "driver", i.Database.Driver())

	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}
