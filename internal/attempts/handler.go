package attempts

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
	"github.com/Algorithm-App/eval-med-app/pkg/handlers"
	"github.com/Algorithm-App/eval-med-app/pkg/openapi"
	"github.com/Algorithm-App/eval-med-app/pkg/routes"
)

// Form fields read from submissions.
const (
	FieldAudio        = "audio"
	FieldLanguage     = "language"
	FieldRubricFormat = "rubric_format"
)

// Handler provides HTTP endpoints for evaluation attempts.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler with the given system, logger, and upload size limit.
func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "attempts"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for attempt endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "",
		Tags:        []string{"Evaluations"},
		Description: "Grade transcripts and recordings against a rubric",
		Routes:      []routes.Route{
			{Method: "POST", Pattern: "/evaluations", Handler: h.Evaluate, OpenAPI: evaluateOp},
			{Method: "POST", Pattern: "/transcriptions", Handler: h.Transcribe, OpenAPI: transcribeOp},
		},
	}
}

// Evaluate grades a multipart submission and stores the result.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	in, err := h.readInput(r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	ev, err := h.sys.Evaluate(r.Context(), EvaluateCommand{Input: in})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, ev)
}

// Transcribe converts an uploaded recording to text.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	audio, err := readAudio(r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	if audio == nil {
		err := &evaluations.MissingFieldError{Fields: []string{FieldAudio}}
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	t, err := h.sys.Transcribe(r.Context(), TranscribeCommand{
		StudentID:   r.FormValue(evaluations.FieldStudentID),
		Audio:       *audio,
		Credentials: agent.CredentialsFromHeaders(r.Header),
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, t)
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	if r.ContentLength > h.maxUploadSize {
		return ErrFileTooLarge
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrFileTooLarge
		}
		return &FormError{Field: "body", Err: err}
	}
	return nil
}

// readInput assembles workflow input from a parsed form. Missing text
// fields are left empty for the validate stage to report together.
func (h *Handler) readInput(r *http.Request) (workflow.Input, error) {
	in := workflow.Input{
		StudentID:   r.FormValue(evaluations.FieldStudentID),
		Credentials: agent.CredentialsFromHeaders(r.Header),
	}

	var err error
	if in.ClinicalCase, err = readText(r, evaluations.FieldClinicalCase); err != nil {
		return in, err
	}
	if in.Transcript, err = readText(r, evaluations.FieldTranscript); err != nil {
		return in, err
	}
	if in.Audio, err = readAudio(r); err != nil {
		return in, err
	}

	data, filename, ok, err := readFile(r, evaluations.FieldRubric)
	if err != nil || !ok {
		return in, err
	}

	src := rubrics.Source{Filename: filename, Data: data}
	if src.Format, err = rubrics.ParseFormat(r.FormValue(FieldRubricFormat)); err != nil {
		return in, err
	}
	in.Rubric, err = rubrics.Normalize(src)
	return in, err
}

// readText returns an uploaded text file for field when one is attached,
// otherwise the plain form value.
func readText(r *http.Request, field string) (string, error) {
	data, _, ok, err := readFile(r, field)
	if err != nil {
		return "", err
	}
	if ok {
		return string(data), nil
	}
	return r.FormValue(field), nil
}

// readAudio returns nil when no recording is attached.
func readAudio(r *http.Request) (*agent.Audio, error) {
	data, filename, ok, err := readFile(r, FieldAudio)
	if err != nil || !ok {
		return nil, err
	}
	return &agent.Audio{
		Filename: filename,
		Data:     data,
		Language: strings.TrimSpace(r.FormValue(FieldLanguage)),
	}, nil
}

func readFile(r *http.Request, field string) ([]byte, string, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, &FormError{Field: field, Err: err}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", false, &FormError{Field: field, Err: err}
	}
	return data, header.Filename, true, nil
}

var credentialParams = []*openapi.Parameter{
	{Name: agent.HeaderAPIKey, In: "header", Description: "Model service API key; the configured key applies when absent", Schema: &openapi.Schema{Type: "string"}},
	{Name: agent.HeaderOrganization, In: "header", Description: "Model service organization", Schema: &openapi.Schema{Type: "string"}},
	{Name: agent.HeaderProject, In: "header", Description: "Model service project", Schema: &openapi.Schema{Type: "string"}},
}

var evaluateOp = &openapi.Operation{
	Summary: "Evaluate an attempt",
	Description: "Grades a transcript, or a recording transcribed first, against a rubric and clinical case. " +
		"The validated result is appended to the student's record. Transcript takes precedence over audio.",
	Parameters: credentialParams,
	RequestBody: openapi.RequestBodyMultipart(map[string]*openapi.Schema{
		evaluations.FieldStudentID:    {Type: "string"},
		evaluations.FieldClinicalCase: {Type: "string", Description: "Case text, or a .txt file"},
		evaluations.FieldTranscript:   {Type: "string", Description: "Transcript text, or a .txt file"},
		evaluations.FieldRubric:       {Type: "string", Format: "binary", Description: "JSON, YAML, outline, or .docx rubric"},
		FieldRubricFormat:             {Type: "string", Enum: []any{rubrics.FormatJSON, rubrics.FormatYAML, rubrics.FormatOutline, rubrics.FormatDocx}},
		FieldAudio:                    {Type: "string", Format: "binary"},
		FieldLanguage:                 {Type: "string", Description: "Recording language hint", Example: "fr"},
	}, evaluations.FieldStudentID, evaluations.FieldClinicalCase, evaluations.FieldRubric),
	Responses: map[int]*openapi.Response{
		201: openapi.ResponseJSON("Stored evaluation", "Evaluation"),
		400: openapi.ResponseRef("BadRequest"),
		413: openapi.ResponseRef("BadRequest"),
		422: openapi.ResponseRef("Unprocessable"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	},
}

var transcribeOp = &openapi.Operation{
	Summary:     "Transcribe a recording",
	Description: "Returns the transcript of an uploaded recording. The transcript is not stored.",
	Parameters:  credentialParams,
	RequestBody: openapi.RequestBodyMultipart(map[string]*openapi.Schema{
		evaluations.FieldStudentID: {Type: "string"},
		FieldAudio:                 {Type: "string", Format: "binary"},
		FieldLanguage:              {Type: "string", Example: "fr"},
	}, evaluations.FieldStudentID, FieldAudio),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Transcript", "Transcription"),
		400: openapi.ResponseRef("BadRequest"),
		413: openapi.ResponseRef("BadRequest"),
		503: openapi.ResponseRef("ServiceUnavailable"),
	},
}

// Schemas returns the OpenAPI component schemas for attempt and result types.
func Schemas() map[string]*openapi.Schema {
	return map[string]*openapi.Schema{
		"CriterionScore": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"critère":       {Type: "string"},
				"score":         {Type: "number"},
				"justification": {Type: "string"},
			},
			Required: []string{"critère", "score", "justification"},
		},
		"Evaluation": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"attempt_id":       {Type: "string", Format: "uuid"},
				"created_at":       {Type: "string", Format: "date-time"},
				"student_id":       {Type: "string"},
				"notes":            {Type: "array", Items: openapi.SchemaRef("CriterionScore")},
				"auxiliary_scores": {Type: "object", Description: "synthese and prise_en_charge in [0, 1]"},
				"note_finale":      {Type: "number", Description: "Composite grade out of 20"},
				"commentaire":      {Type: "string"},
				"transcript":       {Type: "string"},
				"transcribed":      {Type: "boolean"},
				"prompt_hash":      {Type: "string"},
				"shared":           {Type: "boolean", Description: "Result came from an identical submission already in flight"},
				"recording_key":    {Type: "string"},
			},
		},
		"Transcription": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"student_id":    {Type: "string"},
				"transcript":    {Type: "string"},
				"language":      {Type: "string"},
				"recording_key": {Type: "string"},
			},
		},
	}
}
