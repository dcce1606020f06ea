package evaluations

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Domain errors for evaluation requests.
var (
	ErrMissingField     = errors.New("required field missing")
	ErrInvalidStudentID = errors.New("student identifier must be 8 alphanumeric characters")
)

// MissingFieldError lists the empty request fields that block an evaluation.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, strings.Join(e.Fields, ", "))
}

// FieldName returns the first missing field.
func (e *MissingFieldError) FieldName() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0]
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// InvalidStudentIDError reports an identifier rejected by strict validation.
type InvalidStudentIDError struct {
	ID string
}

func (e *InvalidStudentIDError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidStudentID, e.ID)
}

// FieldName returns the offending field.
func (e *InvalidStudentIDError) FieldName() string { return FieldStudentID }

func (e *InvalidStudentIDError) Unwrap() error { return ErrInvalidStudentID }

// MapHTTPStatus maps request validation errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrMissingField) || errors.Is(err, ErrInvalidStudentID) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
