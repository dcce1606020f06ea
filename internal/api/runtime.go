package api

import (
	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/internal/infrastructure"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
	"github.com/Algorithm-App/eval-med-app/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination    pagination.Config
	MaxUploadSize int64
	Workflow      *workflow.Runtime
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	logger := infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Database:  infra.Database,
			Storage:   infra.Storage,
			Agent:     infra.Agent,
		},
		Pagination:    cfg.API.Pagination,
		MaxUploadSize: cfg.API.MaxUploadSizeBytes(),
		Workflow: &workflow.Runtime{
			Agent:           infra.Agent,
			StrictStudentID: cfg.API.StrictStudentID,
			Timeout:         cfg.Agent.EvaluationTimeoutDuration(),
			Logger:          logger,
		},
	}
}
