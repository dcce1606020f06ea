package module

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/Algorithm-App/eval-med-app/pkg/middleware"
)

// Router dispatches requests to mounted modules by their first path segment.
// Unmatched paths, such as health probes, fall through to a native ServeMux.
type Router struct {
	modules    map[string]*Module
	native     *http.ServeMux
	middleware middleware.System
}

// NewRouter creates a Router with no modules and an empty native mux.
func NewRouter() *Router {
	return &Router{
		modules:    make(map[string]*Module),
		native:     http.NewServeMux(),
		middleware: middleware.New(),
	}
}

// HandleNative registers a handler on the native fallback mux.
func (r *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	r.native.HandleFunc(pattern, handler)
}

// Mount registers a module under its prefix. Panics if the prefix is taken.
func (r *Router) Mount(m *Module) {
	if _, ok := r.modules[m.prefix]; ok {
		panic(fmt.Sprintf("module prefix already mounted: %s", m.prefix))
	}
	r.modules[m.prefix] = m
}

// Prefixes lists the mounted module prefixes in sorted order.
func (r *Router) Prefixes() []string {
	prefixes := make([]string, 0, len(r.modules))
	for prefix := range r.modules {
		prefixes = append(prefixes, prefix)
	}
	slices.Sort(prefixes)
	return prefixes
}

// Use adds middleware that wraps every request, mounted or native.
func (r *Router) Use(mw func(http.Handler) http.Handler) {
	r.middleware.Use(mw)
}

// ServeHTTP applies the router middleware and dispatches the request.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.middleware.Apply(http.HandlerFunc(r.dispatch)).ServeHTTP(w, req)
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	trimTrailingSlash(req)

	if m, ok := r.modules[firstSegment(req.URL.Path)]; ok {
		m.Serve(w, req)
		return
	}

	r.native.ServeHTTP(w, req)
}

func firstSegment(path string) string {
	parts := strings.SplitN(path, "/", 3)
	if len(parts) >= 2 {
		return "/" + parts[1]
	}
	return path
}

func trimTrailingSlash(req *http.Request) {
	if path := req.URL.Path; len(path) > 1 && strings.HasSuffix(path, "/") {
		req.URL.Path = strings.TrimSuffix(path, "/")
		if raw := req.URL.RawPath; raw != "" {
			req.URL.RawPath = strings.TrimSuffix(raw, "/")
		}
	}
}
