package api

import (
	"fmt"
	"net/http"

	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/internal/config"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
	"github.com/Algorithm-App/eval-med-app/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	groups := []routes.Group{
		rubrics.NewHandler(runtime.Logger, runtime.MaxUploadSize).Routes(),
		domain.Attempts.Handler(runtime.MaxUploadSize).Routes(),
		domain.Students.Handler().Routes(),
		newRecordingsHandler(runtime.Storage, runtime.Logger, cfg.Storage.MaxListSize).routes(),
	}

	routes.Register(mux, groups...)

	spec, err := buildSpec(cfg, groups)
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /openapi.json", openapi.ServeSpec(spec))

	return nil
}

func buildSpec(cfg *config.Config, groups []routes.Group) ([]byte, error) {
	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version)
	spec.SetDescription(cfg.API.OpenAPI.Description)
	spec.AddServer(cfg.API.OpenAPI.ServerURL(cfg.API.BasePath))

	routes.Describe(spec, "", groups...)

	spec.Components.AddSchemas(rubrics.Schemas())
	spec.Components.AddSchemas(attempts.Schemas())
	spec.Components.AddSchemas(students.Schemas())
	spec.Components.AddSchemas(recordingSchemas())

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal api document: %w", err)
	}
	return data, nil
}
