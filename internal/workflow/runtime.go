package workflow

import (
	"log/slog"
	"time"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
)

// Runtime bundles the dependencies that workflow stages require.
// It is constructed by higher-level composition code and shared across requests.
type Runtime struct {
	Agent           agent.Client
	StrictStudentID bool
	// Timeout bounds an evaluation shared by coalesced submissions.
	// Zero leaves it unbounded.
	Timeout time.Duration
	Logger  *slog.Logger
}
