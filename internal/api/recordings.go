package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/pkg/handlers"
	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
	"github.com/Algorithm-App/eval-med-app/pkg/routes"
	"github.com/Algorithm-App/eval-med-app/pkg/storage"
)

// recordingsHandler browses archived recordings. Keys are always read
// under the recordings prefix. A nil store answers every request with
// storage.ErrDisabled.
type recordingsHandler struct {
	store       storage.System
	logger      *slog.Logger
	maxListSize int32
}

func newRecordingsHandler(
	store storage.System,
	logger *slog.Logger,
	maxListSize int32,
) *recordingsHandler {
	return &recordingsHandler{
		store:       store,
		logger:      logger.With("handler", "recordings"),
		maxListSize: maxListSize,
	}
}

func (h *recordingsHandler) routes() routes.Group {
	return routes.Group{
		Prefix:      "/recordings",
		Tags:        []string{"Recordings"},
		Description: "Archived exam recordings",
		Routes:      []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.list, OpenAPI: listRecordingsOp},
			{Method: "GET", Pattern: "/download/{key...}", Handler: h.download, OpenAPI: downloadRecordingOp},
			{Method: "GET", Pattern: "/{key...}", Handler: h.find, OpenAPI: findRecordingOp},
		},
	}
}

func (h *recordingsHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(storage.ErrDisabled), storage.ErrDisabled)
		return
	}

	maxResults, err := storage.ParseMaxResults(
		r.URL.Query().Get("max_results"),
		h.maxListSize,
	)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	prefix := attempts.RecordingPrefix + "/"
	if student := r.URL.Query().Get("student_id"); student != "" {
		prefix += student + "/"
	}

	result, err := h.store.List(
		r.Context(),
		prefix,
		r.URL.Query().Get("marker"),
		maxResults,
	)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *recordingsHandler) find(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(storage.ErrDisabled), storage.ErrDisabled)
		return
	}

	meta, err := h.store.Find(r.Context(), recordingKey(r))
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, meta)
}

func (h *recordingsHandler) download(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(storage.ErrDisabled), storage.ErrDisabled)
		return
	}

	key := recordingKey(r)
	result, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Content-Type", result.ContentType)
	if result.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, result.Body)
}

// recordingKey maps the path key (<student_id>/<file>) to its blob key.
func recordingKey(r *http.Request) string {
	return attempts.RecordingPrefix + "/" + r.PathValue("key")
}

var listRecordingsOp = &openapi.Operation{
	Summary:     "List archived recordings",
	Description: "Returns one page of archived recordings, optionally for a single student.",
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("student_id", "string", "Restrict to one student", false),
		openapi.QueryParam("marker", "string", "Continuation marker from a previous page", false),
		openapi.QueryParam("max_results", "integer", "Page size", false),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Recording page", "BlobList"),
		400: openapi.ResponseRef("BadRequest"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	},
}

var findRecordingOp = &openapi.Operation{
	Summary: "Recording metadata",
	Parameters: []*openapi.Parameter{
		openapi.PathParam("key", "Recording key below recordings/, as <student_id>/<file>"),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Recording metadata", "BlobMeta"),
		404: openapi.ResponseRef("NotFound"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	},
}

var downloadRecordingOp = &openapi.Operation{
	Summary: "Download a recording",
	Parameters: []*openapi.Parameter{
		openapi.PathParam("key", "Recording key below recordings/, as <student_id>/<file>"),
	},
	Responses: map[int]*openapi.Response{
		200: {Description: "Recording bytes"},
		404: openapi.ResponseRef("NotFound"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	},
}

func recordingSchemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"BlobMeta": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"key":            {Type: "string"},
				"content_type":   {Type: "string"},
				"content_length": {Type: "integer"},
				"last_modified":  {Type: "string", Format: "date-time"},
			},
		},
		"BlobList": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"blobs":       {Type: "array", Items: openapi.SchemaRef("BlobMeta")},
				"next_marker": {Type: "string"},
			},
		},
	}
}
