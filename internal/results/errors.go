package results

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrResultSchema matches every ResultSchemaError.
var ErrResultSchema = errors.New("service result failed validation")

// ResultSchemaError reports a service response that could not be parsed
// or that violates the result schema. Field names the offending location.
type ResultSchemaError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ResultSchemaError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrResultSchema, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// FieldName returns the offending result field.
func (e *ResultSchemaError) FieldName() string { return e.Field }

func (e *ResultSchemaError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResultSchema}
	}
	return []error{ErrResultSchema, e.Err}
}

// MapHTTPStatus maps result validation errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrResultSchema) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func schemaErr(field, format string, args ...any) *ResultSchemaError {
	return &ResultSchemaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
