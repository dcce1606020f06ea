package api

import (
	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/internal/students"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Students students.System
	Attempts attempts.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	studentsSystem := students.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
		runtime.Workflow.StrictStudentID,
	)

	attemptsSystem := attempts.New(
		runtime.Workflow,
		studentsSystem,
		runtime.Storage,
		runtime.Logger,
	)

	return &Domain{
		Students: studentsSystem,
		Attempts: attemptsSystem,
	}
}
