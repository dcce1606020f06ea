package students

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/pkg/handlers"
	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
	"github.com/Algorithm-App/eval-med-app/pkg/pagination"
	"github.com/Algorithm-App/eval-med-app/pkg/routes"
)

// Handler provides HTTP endpoints for student records.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// GradeRequest is the body of a human grade submission.
type GradeRequest struct {
	Score *float64 `json:"score"`
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "students"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for student endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/students",
		Tags:        []string{"Students"},
		Description: "Stored evaluations, human grades and CSV exports",
		Routes:      []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: listOp},
			{Method: "GET", Pattern: "/export", Handler: h.Export, OpenAPI: exportOp},
			{Method: "POST", Pattern: "/purge", Handler: h.RequestPurge, OpenAPI: requestPurgeOp},
			{Method: "DELETE", Pattern: "", Handler: h.ConfirmPurge, OpenAPI: confirmPurgeOp},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: findOp},
			{Method: "PUT", Pattern: "/{id}/grades/{slot}", Handler: h.RecordGrade, OpenAPI: recordGradeOp},
		},
	}
}

// List returns a page of student identity rows.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns the full record of one student.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sys.Find(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rec)
}

// RecordGrade stores a human grade in the slot named by the path.
func (h *Handler) RecordGrade(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, &InvalidGradeError{Field: "slot"})
		return
	}

	var req GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Score == nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, &evaluations.MissingFieldError{Fields: []string{"score"}})
		return
	}

	grade, err := h.sys.RecordHumanGrade(r.Context(), GradeCommand{
		StudentID: r.PathValue("id"),
		Slot:      slot,
		Score:     *req.Score,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, grade)
}

// Export streams one table as CSV. The kind query parameter selects
// ai (default), human, or students.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseExportKind(r.URL.Query().Get("kind"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	exp, err := h.sys.Export(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("ecos-%s-%s.csv", kind, time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	if err := WriteCSV(w, exp, kind); err != nil {
		h.logger.Error("csv export failed", "kind", kind, "error", err)
	}
}

// RequestPurge starts a purge and returns the confirmation token.
func (h *Handler) RequestPurge(w http.ResponseWriter, r *http.Request) {
	req, err := h.sys.RequestPurge(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, req)
}

// ConfirmPurge deletes every record once given a valid token and an explicit acknowledgment.
func (h *Handler) ConfirmPurge(w http.ResponseWriter, r *http.Request) {
	var cmd PurgeConfirmation
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrPurgeNotAcknowledged)
		return
	}

	counts, err := h.sys.ConfirmPurge(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, counts)
}

var listOp = &openapi.Operation{
	Summary:     "List students",
	Description: "Returns a paginated list of student identity rows. search matches the student identifier.",
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("page", "integer", "Page number (1-indexed)", false),
		openapi.QueryParam("page_size", "integer", "Results per page", false),
		openapi.QueryParam("search", "string", "Search query", false),
		openapi.QueryParam("sort", "string", "Comma-separated sort fields: StudentID, FirstEvaluatedAt", false),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Student page", "StudentPage"),
	},
}

var findOp = &openapi.Operation{
	Summary:     "Find a student record",
	Description: "Returns the identity row, every AI attempt, and the human grades of one student.",
	Parameters: []*openapi.Parameter{
		openapi.PathParam("id", "Student identifier"),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Student record", "StudentRecord"),
		404: openapi.ResponseRef("NotFound"),
	},
}

var recordGradeOp = &openapi.Operation{
	Summary:     "Record a human grade",
	Description: "Stores a grade in [0, 20] for evaluator slot 1 or 2, replacing any grade already in the slot.",
	Parameters: []*openapi.Parameter{
		openapi.PathParam("id", "Student identifier"),
		openapi.PathParam("slot", "Evaluator slot (1 or 2)"),
	},
	RequestBody: openapi.RequestBodyJSON("GradeRequest", true),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Recorded grade", "HumanGrade"),
		400: openapi.ResponseRef("BadRequest"),
	},
}

var exportOp = &openapi.Operation{
	Summary:     "Export records as CSV",
	Description: "Writes every stored row of one kind with a header line.",
	Parameters: []*openapi.Parameter{
		openapi.QueryParam("kind", "string", "ai (default), human, or students", false),
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseCSV("CSV export"),
		400: openapi.ResponseRef("BadRequest"),
	},
}

var requestPurgeOp = &openapi.Operation{
	Summary:     "Request a purge",
	Description: "Returns a confirmation token and the row counts that a confirmed purge would delete.",
	Responses: map[int]*openapi.Response{
		202: openapi.ResponseJSON("Purge token", "PurgeRequest"),
	},
}

var confirmPurgeOp = &openapi.Operation{
	Summary:     "Confirm a purge",
	Description: "Deletes every identity row, AI result, and human grade in one transaction.",
	RequestBody: openapi.RequestBodyJSON("PurgeConfirmation", true),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Deleted row counts", "Counts"),
		400: openapi.ResponseRef("BadRequest"),
		409: openapi.ResponseRef("Conflict"),
	},
}

// Schemas returns the OpenAPI component schemas for student types.
func Schemas() map[string]*openapi.Schema {
	student := &openapi.Schema{
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"student_id":         {Type: "string"},
			"identity_hash":      {Type: "string", Description: "Hex SHA-256 of the student identifier"},
			"first_evaluated_at": {Type: "string", Format: "date-time"},
		},
	}

	counts := &openapi.Schema{
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"students":     {Type: "integer"},
			"ai_results":   {Type: "integer"},
			"human_grades": {Type: "integer"},
		},
	}

	return map[string]*openapi.Schema{
		"Student": student,
		"StudentPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"data":        {Type: "array", Items: openapi.SchemaRef("Student")},
				"total":       {Type: "integer"},
				"page":        {Type: "integer"},
				"page_size":   {Type: "integer"},
				"total_pages": {Type: "integer"},
			},
		},
		"HumanGrade": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"student_id":  {Type: "string"},
				"slot":        {Type: "integer", Enum: []any{MinSlot, MaxSlot}},
				"score":       {Type: "number", Minimum: ptr(MinGrade), Maximum: ptr(MaxGrade)},
				"recorded_at": {Type: "string", Format: "date-time"},
			},
		},
		"GradeRequest": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"score": {Type: "number", Minimum: ptr(MinGrade), Maximum: ptr(MaxGrade)},
			},
			Required: []string{"score"},
		},
		"StudentRecord": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"student_id":         {Type: "string"},
				"identity_hash":      {Type: "string"},
				"first_evaluated_at": {Type: "string", Format: "date-time"},
				"attempts":           {Type: "array", Items: openapi.SchemaRef("Attempt")},
				"human_grades":       {Type: "array", Items: openapi.SchemaRef("HumanGrade")},
				"latest_final_grade": {Type: "number"},
			},
		},
		"Attempt": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"attempt_id":       {Type: "string", Format: "uuid"},
				"created_at":       {Type: "string", Format: "date-time"},
				"notes":            {Type: "array", Items: openapi.SchemaRef("CriterionScore")},
				"auxiliary_scores": {Type: "object"},
				"note_finale":      {Type: "number"},
				"commentaire":      {Type: "string"},
			},
		},
		"Counts": counts,
		"PurgeRequest": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"token":      {Type: "string"},
				"expires_at": {Type: "string", Format: "date-time"},
				"counts":     openapi.SchemaRef("Counts"),
			},
		},
		"PurgeConfirmation": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"token":        {Type: "string"},
				"acknowledged": {Type: "boolean"},
			},
			Required: []string{"token", "acknowledged"},
		},
	}
}

func ptr[T any](v T) *T { return &v }
