package routes

import (
	"net/http"
	"strings"

	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
)

// Group organizes routes under a common prefix with shared tags.
type Group struct {
	Prefix      string
	Tags        []string
	Description string
	Routes      []Route
	Children    []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", group)
	}
}

// Describe adds every documented route in groups to spec, rooted at basePath.
// Group tags are applied to operations that declare none, and a group
// description is declared on each of its tags.
func Describe(spec *openapi.Spec, basePath string, groups ...Group) {
	for _, group := range groups {
		describeGroup(spec, basePath, group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		pattern := route.Method + " " + fullPrefix + route.Pattern
		mux.HandleFunc(pattern, route.Handler)
	}
	for _, child := range group.Children {
		registerGroup(mux, fullPrefix, child)
	}
}

func describeGroup(spec *openapi.Spec, parentPrefix string, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	if group.Description != "" {
		for _, tag := range group.Tags {
			spec.AddTag(tag, group.Description)
		}
	}
	for _, route := range group.Routes {
		if route.OpenAPI == nil {
			continue
		}

		op := route.OpenAPI
		if len(op.Tags) == 0 {
			op.Tags = group.Tags
		}

		path := openAPIPath(fullPrefix + route.Pattern)
		item, ok := spec.Paths[path]
		if !ok {
			item = &openapi.PathItem{}
			spec.Paths[path] = item
		}
		item.Set(route.Method, op)
	}
	for _, child := range group.Children {
		describeGroup(spec, fullPrefix, child)
	}
}

// openAPIPath converts ServeMux wildcards ({key...}) to OpenAPI path templates ({key}).
func openAPIPath(pattern string) string {
	if pattern == "" {
		return "/"
	}
	return strings.ReplaceAll(pattern, "...}", "}")
}
