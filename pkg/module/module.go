// Package module mounts self-contained HTTP modules under single-level path
// prefixes, each with its own middleware stack.
package module

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Algorithm-App/eval-med-app/pkg/middleware"
)

// Module serves an inner router beneath a prefix such as "/api".
// Requests reach the router with the prefix removed.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System
}

// New creates a Module with the given single-level prefix (e.g. "/api").
// Panics if the prefix is empty, missing a leading slash, or multi-level.
func New(prefix string, router http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}
}

// Prefix returns the module's path prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use adds middleware to the module's stack.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
}

// Handler returns the inner router wrapped with the module's middleware stack.
func (m *Module) Handler() http.Handler {
	return m.middleware.Apply(m.router)
}

// Serve strips the module prefix and dispatches to the wrapped router.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.Handler().ServeHTTP(w, m.strip(req))
}

// strip removes the prefix from both the decoded and the raw path so
// escaped segments such as recording keys keep their encoding.
func (m *Module) strip(req *http.Request) *http.Request {
	u := new(url.URL)
	*u = *req.URL
	u.Path = rootIfEmpty(strings.TrimPrefix(req.URL.Path, m.prefix))
	if req.URL.RawPath != "" {
		u.RawPath = rootIfEmpty(strings.TrimPrefix(req.URL.RawPath, m.prefix))
	}

	out := new(http.Request)
	*out = *req
	out.URL = u
	return out
}

func rootIfEmpty(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case !strings.HasPrefix(prefix, "/"):
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.Count(prefix, "/") != 1:
		return fmt.Errorf("module prefix must be single-level sub-path: %s", prefix)
	}
	return nil
}
