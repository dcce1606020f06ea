// Package middleware provides the HTTP middleware stack shared by the
// server's modules: request logging, panic recovery and CORS.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"

	"github.com/Algorithm-App/eval-med-app/pkg/handlers"
)

// System manages an ordered stack of HTTP middleware.
// The first middleware added is the outermost wrapper.
type System interface {
	Use(mw func(http.Handler) http.Handler)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	fns []func(http.Handler) http.Handler
}

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

func (s *stack) Use(fn func(http.Handler) http.Handler) {
	s.fns = append(s.fns, fn)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for _, fn := range slices.Backward(s.fns) {
		handler = fn(handler)
	}
	return handler
}

// Recover returns middleware that turns a handler panic into a 500 JSON error.
// http.ErrAbortHandler is re-raised so the server can abort the connection.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error(
					"handler panic",
					"method", r.Method,
					"uri", r.URL.RequestURI(),
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				handlers.RespondJSON(w, http.StatusInternalServerError, handlers.ErrorResponse{
					Error: http.StatusText(http.StatusInternalServerError),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
