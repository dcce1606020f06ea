package agent

import (
	"errors"
	"fmt"
	"net/http"
)

// Service names reported by ServiceUnavailableError.
const (
	ServiceReasoning     = "reasoning"
	ServiceTranscription = "transcription"
)

// Domain errors for model service calls.
var (
	ErrServiceUnavailable = errors.New("model service unavailable")
	ErrMissingCredentials = errors.New("no API key configured or supplied")
	ErrEmptyResponse      = errors.New("service returned no choices")
	ErrEmptyAudio         = errors.New("audio is empty")
)

// ServiceUnavailableError reports a network, authentication, rate-limit,
// or timeout failure from an external model service. Calls are never retried.
type ServiceUnavailableError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s service unavailable (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s service unavailable: %v", e.Service, e.Err)
}

// FieldName returns the failing service.
func (e *ServiceUnavailableError) FieldName() string { return e.Service }

func (e *ServiceUnavailableError) Unwrap() []error { return []error{ErrServiceUnavailable, e.Err} }

// MapHTTPStatus maps agent errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
