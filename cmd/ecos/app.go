package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/internal/infrastructure"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
}

// app is the set of systems a command works with.
type app struct {
	Students students.System
	Attempts attempts.System
	Close    func() error
}

// opener builds the app for one command invocation.
type opener func(opts options) (*app, error)

// openApp loads configuration, migrates the store and assembles the domain systems.
func openApp(opts options) (*app, error) {
	if opts.configPath != "" {
		if err := os.Setenv(config.EnvEcosConfig, opts.configPath); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := infra.Start(); err != nil {
		return nil, err
	}
	if err := infra.Lifecycle.WaitForStartup(); err != nil {
		infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return nil, fmt.Errorf("startup: %w", err)
	}

	logger := infra.Logger.With("module", "cli")
	studentsSystem := students.New(infra.Database.Connection(), logger, cfg.API.Pagination, cfg.API.StrictStudentID)
	rt := &workflow.Runtime{
		Agent:           infra.Agent,
		StrictStudentID: cfg.API.StrictStudentID,
		Timeout:         cfg.Agent.EvaluationTimeoutDuration(),
		Logger:          logger,
	}

	return &app{
		Students: studentsSystem,
		Attempts: attempts.New(rt, studentsSystem, infra.Storage, logger),
		Close: func() error {
			return infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration() + time.Second)
		},
	}, nil
}
