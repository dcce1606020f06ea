package students

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
)

// Domain errors for student record operations.
var (
	ErrNotFound             = errors.New("student not found")
	ErrDuplicate            = errors.New("record already exists")
	ErrStoreWrite           = errors.New("store write failed")
	ErrInvalidGrade         = errors.New("invalid human grade")
	ErrEmptyResult          = errors.New("result has no criterion scores")
	ErrInvalidExportKind    = errors.New("unknown export kind")
	ErrPurgeToken           = errors.New("purge token unknown or expired")
	ErrPurgeNotAcknowledged = errors.New("purge requires explicit acknowledgment")
)

// StoreWriteError reports a failed write. No partial state is left behind:
// the surrounding transaction has been rolled back.
type StoreWriteError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrStoreWrite, e.Op, e.Table, e.Err)
}

// FieldName returns the table the write targeted.
func (e *StoreWriteError) FieldName() string { return e.Table }

func (e *StoreWriteError) Unwrap() []error { return []error{ErrStoreWrite, e.Err} }

// InvalidGradeError names the human grade field outside its range.
type InvalidGradeError struct {
	Field string
	Value float64
}

func (e *InvalidGradeError) Error() string {
	return fmt.Sprintf("%s: %s %v out of range", ErrInvalidGrade, e.Field, e.Value)
}

// FieldName returns the offending field.
func (e *InvalidGradeError) FieldName() string { return e.Field }

func (e *InvalidGradeError) Unwrap() error { return ErrInvalidGrade }

// MapHTTPStatus maps student domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidGrade),
		errors.Is(err, ErrEmptyResult),
		errors.Is(err, ErrInvalidExportKind),
		errors.Is(err, ErrPurgeNotAcknowledged):
		return http.StatusBadRequest
	case errors.Is(err, ErrPurgeToken):
		return http.StatusConflict
	case errors.Is(err, ErrStoreWrite):
		return http.StatusInternalServerError
	}
	return evaluations.MapHTTPStatus(err)
}

func writeErr(op, table string, err error) error {
	return &StoreWriteError{Op: op, Table: table, Err: err}
}
