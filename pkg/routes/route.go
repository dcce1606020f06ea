package routes

import (
	"net/http"

	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
)

// Route binds an HTTP method and pattern to a handler.
// OpenAPI is optional; routes without it are served but left out of the API document.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
	OpenAPI *openapi.Operation
}
