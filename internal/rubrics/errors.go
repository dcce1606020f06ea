package rubrics

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors for rubric normalization.
var (
	ErrRubricFormat  = errors.New("invalid rubric format")
	ErrEmptyRubric   = errors.New("rubric contains no criteria")
	ErrUnknownFormat = errors.New("unknown rubric format")
)

// RubricFormatError reports rubric input that could not be decoded
// or that has a field of the wrong shape.
type RubricFormatError struct {
	Field string
	Err   error
}

func (e *RubricFormatError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRubricFormat, e.Field, e.Err)
}

// FieldName returns the offending rubric field.
func (e *RubricFormatError) FieldName() string { return e.Field }

func (e *RubricFormatError) Unwrap() []error { return []error{ErrRubricFormat, e.Err} }

// EmptyRubricError reports a rubric that decoded cleanly but yielded no criteria.
type EmptyRubricError struct {
	Format Format
}

func (e *EmptyRubricError) Error() string {
	return fmt.Sprintf("%s (format %s)", ErrEmptyRubric, e.Format)
}

// FieldName returns the offending field.
func (e *EmptyRubricError) FieldName() string { return "rubric" }

func (e *EmptyRubricError) Unwrap() error { return ErrEmptyRubric }

// MapHTTPStatus maps rubric errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrRubricFormat), errors.Is(err, ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyRubric):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func formatErr(field, format string, args ...any) error {
	return &RubricFormatError{Field: field, Err: fmt.Errorf(format, args...)}
}
