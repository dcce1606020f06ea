package rubrics

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/Algorithm-App/eval-med-app/pkg/handlers"
	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
	"github.com/Algorithm-App/eval-med-app/pkg/routes"
)

// ErrFileTooLarge indicates an upload above the configured size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum upload size")

// Handler provides the rubric preview endpoint.
type Handler struct {
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler with the given logger and upload size limit.
func NewHandler(logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		logger:        logger.With("handler", "rubrics"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for rubric endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/rubrics",
		Tags:        []string{"Rubrics"},
		Description: "Normalize uploaded rubrics into the canonical criterion list",
		Routes:      []routes.Route{
			{Method: "POST", Pattern: "/normalize", Handler: h.Normalize, OpenAPI: normalizeOp},
		},
	}
}

// Normalize parses a rubric from a multipart "rubric" file or from the raw request body
// and returns the canonical rubric with its denominators. The "format" query
// parameter overrides format detection.
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	src, err := ReadSource(r, "rubric", h.maxUploadSize)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	if format != "" {
		src.Format = format
	}

	rubric, err := Normalize(src)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.logger.Info(
		"rubric normalized",
		"format", rubric.Format,
		"criteria", len(rubric.Criteria),
		"discrete_denominator", rubric.DiscreteDenominator(),
		"duplicates", len(rubric.Duplicates),
	)

	handlers.RespondJSON(w, http.StatusOK, rubric.Summarize())
}

// ReadSource reads rubric bytes from the named multipart file field,
// or from the whole body when the request is not multipart.
func ReadSource(r *http.Request, field string, maxUploadSize int64) (Source, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return Source{}, &RubricFormatError{Field: field, Err: ErrFileTooLarge}
		}

		file, header, err := r.FormFile(field)
		if err != nil {
			return Source{}, &RubricFormatError{Field: field, Err: err}
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return Source{}, &RubricFormatError{Field: field, Err: err}
		}
		return Source{Filename: header.Filename, Data: data}, nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxUploadSize))
	if err != nil {
		return Source{}, &RubricFormatError{Field: field, Err: ErrFileTooLarge}
	}

	src := Source{Data: data}
	switch mediaType {
	case "application/json":
		src.Format = FormatJSON
	case "application/yaml", "application/x-yaml", "text/yaml":
		src.Format = FormatYAML
	case "text/plain":
		src.Format = FormatOutline
	}
	return src, nil
}

var normalizeOp = &openapi.Operation{
	Summary:     "Normalize a rubric",
	Description: "Parses a JSON, YAML, outline, or .docx rubric and returns the canonical criteria with discrete and composite denominators.",
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("format", "string", "Force the rubric format: json, yaml, outline, docx", false),
	},
	RequestBody: openapi.RequestBodyMultipart(map[string]*openapi.Schema{
		"rubric": {Type: "string", Format: "binary"},
	}, "rubric"),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Normalized rubric", "RubricSummary"),
		400: openapi.ResponseRef("BadRequest"),
		422: openapi.ResponseRef("Unprocessable"),
	},
}

// Schemas returns the OpenAPI component schemas for rubric types.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"Criterion": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"name":       {Type: "string"},
				"max_points": {Type: "integer", Minimum: ptr(1.0)},
			},
			Required: []string{"name", "max_points"},
		},
		"AuxiliaryScale": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"name":                {Type: "string", Enum: []any{ScaleSynthese, ScalePriseEnCharge}},
				"descriptor_by_level": {Type: "object"},
			},
		},
		"RubricSummary": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"format":                {Type: "string", Enum: []any{FormatJSON, FormatYAML, FormatOutline, FormatDocx}},
				"criteria":              {Type: "array", Items: openapi.SchemaRef("Criterion")},
				"auxiliary":             {Type: "array", Items: openapi.SchemaRef("AuxiliaryScale")},
				"duplicates":            {Type: "array", Items: &openapi.Schema{Type: "string"}},
				"heuristic":             {Type: "boolean", Description: "Recovered by the outline line heuristic"},
				"discrete_denominator":  {Type: "integer"},
				"composite_denominator": {Type: "integer", Example: CompositeDenominator},
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }
