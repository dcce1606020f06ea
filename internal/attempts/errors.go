package attempts

import (
	"errors"
	"net/http"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/results"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/internal/students"
)

// Domain errors for attempt submissions.
var (
	ErrFileTooLarge = errors.New("upload exceeds maximum size")
	ErrInvalidForm  = errors.New("invalid form submission")
)

// FormError names the form field that could not be read.
type FormError struct {
	Field string
	Err   error
}

func (e *FormError) Error() string {
	return ErrInvalidForm.Error() + ": " + e.Field + ": " + e.Err.Error()
}

// FieldName returns the offending form field.
func (e *FormError) FieldName() string { return e.Field }

func (e *FormError) Unwrap() []error { return []error{ErrInvalidForm, e.Err} }

// MapHTTPStatus maps every error an attempt can surface to an HTTP status code.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidForm):
		return http.StatusBadRequest
	case errors.Is(err, evaluations.ErrMissingField),
		errors.Is(err, evaluations.ErrInvalidStudentID):
		return evaluations.MapHTTPStatus(err)
	case errors.Is(err, rubrics.ErrRubricFormat),
		errors.Is(err, rubrics.ErrEmptyRubric),
		errors.Is(err, rubrics.ErrUnknownFormat):
		return rubrics.MapHTTPStatus(err)
	case errors.Is(err, agent.ErrServiceUnavailable),
		errors.Is(err, agent.ErrEmptyAudio):
		return agent.MapHTTPStatus(err)
	case errors.Is(err, results.ErrResultSchema):
		return results.MapHTTPStatus(err)
	}
	return students.MapHTTPStatus(err)
}
