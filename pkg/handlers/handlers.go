// Package handlers provides shared HTTP response helpers for domain handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// FieldError is implemented by errors that name the offending input field.
type FieldError interface {
	error
	FieldName() string
}

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError logs err and writes it as a JSON error response.
// Errors that implement FieldError also report the offending field.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var fe FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.FieldName()
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err, "field", resp.Field)
	}

	RespondJSON(w, status, resp)
}
