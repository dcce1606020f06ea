package attempts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/pkg/handlers"
)

type mockSystem struct {
	evaluateFn   func(ctx context.Context, cmd attempts.EvaluateCommand) (*attempts.Evaluation, error)
	transcribeFn func(ctx context.Context, cmd attempts.TranscribeCommand) (*attempts.Transcription, error)
}

func (m *mockSystem) Handler(maxUploadSize int64) *attempts.Handler {
	return attempts.NewHandler(m, slog.New(slog.NewTextHandler(io.Discard, nil)), maxUploadSize)
}

func (m *mockSystem) Evaluate(ctx context.Context, cmd attempts.EvaluateCommand) (*attempts.Evaluation, error) {
	return m.evaluateFn(ctx, cmd)
}

func (m *mockSystem) Transcribe(ctx context.Context, cmd attempts.TranscribeCommand) (*attempts.Transcription, error) {
	return m.transcribeFn(ctx, cmd)
}

func setupMux(h *attempts.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	group := h.Routes()
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+group.Prefix+route.Pattern, route.Handler)
	}
	return mux
}

type part struct {
	field    string
	filename string
	content  string
}

func multipartRequest(t *testing.T, path string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		var (
			w   io.Writer
			err error
		)
		if p.filename != "" {
			w, err = mw.CreateFormFile(p.field, p.filename)
		} else {
			w, err = mw.CreateFormField(p.field)
		}
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		io.WriteString(w, p.content)
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const rubricJSON = `{"grille_observation":[{"critère":"Se présente","points":1},{"critère":"Examine le patient","points":2}]}`

func TestHandlerEvaluate(t *testing.T) {
	var got attempts.EvaluateCommand
	sys := &mockSystem{
		evaluateFn: func(_ context.Context, cmd attempts.EvaluateCommand) (*attempts.Evaluation, error) {
			got = cmd
			return &attempts.Evaluation{
				Attempt: &students.Attempt{
					EvaluationResult: evaluations.EvaluationResult{FinalGrade: 14.5},
				},
				StudentID: cmd.StudentID,
			}, nil
		},
	}
	mux := setupMux(sys.Handler(1 << 20))

	req := multipartRequest(t, "/evaluations",
		part{field: "student_id", content: "AB12CD34"},
		part{field: "clinical_case", filename: "cas.txt", content: "Douleur thoracique."},
		part{field: "transcript", content: "Bonjour."},
		part{field: "rubric", filename: "grille.json", content: rubricJSON},
	)
	req.Header.Set(agent.HeaderAPIKey, "sk-operator")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	if got.StudentID != "AB12CD34" || got.ClinicalCase != "Douleur thoracique." || got.Transcript != "Bonjour." {
		t.Errorf("input = %+v", got.Input)
	}
	if got.Rubric == nil || len(got.Rubric.Criteria) != 2 || got.Rubric.DiscreteDenominator() != 3 {
		t.Errorf("rubric = %+v", got.Rubric)
	}
	if got.Audio != nil {
		t.Error("Audio set without an audio part")
	}
	if got.Credentials.APIKey != "sk-operator" {
		t.Errorf("APIKey = %q", got.Credentials.APIKey)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["note_finale"] != 14.5 || body["student_id"] != "AB12CD34" {
		t.Errorf("body = %v", body)
	}
}

func TestHandlerEvaluateAudio(t *testing.T) {
	var got attempts.EvaluateCommand
	sys := &mockSystem{
		evaluateFn: func(_ context.Context, cmd attempts.EvaluateCommand) (*attempts.Evaluation, error) {
			got = cmd
			return &attempts.Evaluation{Attempt: &students.Attempt{}}, nil
		},
	}
	mux := setupMux(sys.Handler(1 << 20))

	req := multipartRequest(t, "/evaluations",
		part{field: "student_id", content: "AB12CD34"},
		part{field: "clinical_case", content: "Douleur thoracique."},
		part{field: "rubric", filename: "grille.json", content: rubricJSON},
		part{field: "audio", filename: "station.wav", content: "RIFF"},
		part{field: "language", content: "fr"},
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got.Audio == nil || got.Audio.Filename != "station.wav" || string(got.Audio.Data) != "RIFF" || got.Audio.Language != "fr" {
		t.Errorf("audio = %+v", got.Audio)
	}
}

func TestHandlerEvaluateRejectsBadRubric(t *testing.T) {
	sys := &mockSystem{
		evaluateFn: func(context.Context, attempts.EvaluateCommand) (*attempts.Evaluation, error) {
			t.Fatal("Evaluate called with an invalid rubric")
			return nil, nil
		},
	}
	mux := setupMux(sys.Handler(1 << 20))

	req := multipartRequest(t, "/evaluations",
		part{field: "student_id", content: "AB12CD34"},
		part{field: "rubric", filename: "grille.json", content: `{"grille_observation": "nope"}`},
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing field", &evaluations.MissingFieldError{Fields: []string{"transcript"}}, http.StatusBadRequest},
		{"service down", &agent.ServiceUnavailableError{Service: agent.ServiceReasoning, Err: agent.ErrEmptyResponse}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := &mockSystem{
				evaluateFn: func(context.Context, attempts.EvaluateCommand) (*attempts.Evaluation, error) {
					return nil, tt.err
				},
			}
			mux := setupMux(sys.Handler(1 << 20))

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, multipartRequest(t, "/evaluations", part{field: "student_id", content: "AB12CD34"}))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}

			var resp handlers.ErrorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestHandlerEvaluateTooLarge(t *testing.T) {
	sys := &mockSystem{}
	mux := setupMux(sys.Handler(64))

	req := multipartRequest(t, "/evaluations",
		part{field: "audio", filename: "long.wav", content: string(bytes.Repeat([]byte("a"), 1024))},
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandlerTranscribe(t *testing.T) {
	var got attempts.TranscribeCommand
	sys := &mockSystem{
		transcribeFn: func(_ context.Context, cmd attempts.TranscribeCommand) (*attempts.Transcription, error) {
			got = cmd
			return &attempts.Transcription{StudentID: cmd.StudentID, Transcript: "Bonjour."}, nil
		},
	}
	mux := setupMux(sys.Handler(1 << 20))

	req := multipartRequest(t, "/transcriptions",
		part{field: "student_id", content: "AB12CD34"},
		part{field: "audio", filename: "a.m4a", content: "ftyp"},
	)
	req.Header.Set(agent.HeaderProject, "proj_ecos")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got.Audio.Filename != "a.m4a" || got.Credentials.Project != "proj_ecos" {
		t.Errorf("command = %+v", got)
	}

	var tr attempts.Transcription
	json.NewDecoder(rec.Body).Decode(&tr)
	if tr.Transcript != "Bonjour." {
		t.Errorf("transcript = %q", tr.Transcript)
	}
}

func TestHandlerTranscribeRequiresAudio(t *testing.T) {
	sys := &mockSystem{}
	mux := setupMux(sys.Handler(1 << 20))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, multipartRequest(t, "/transcriptions", part{field: "student_id", content: "AB12CD34"}))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var resp handlers.ErrorResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Field != attempts.FieldAudio {
		t.Errorf("field = %q, want audio", resp.Field)
	}
}

func TestHandlerRejectsNonMultipart(t *testing.T) {
	sys := &mockSystem{}
	mux := setupMux(sys.Handler(1 << 20))

	req := httptest.NewRequest("POST", "/evaluations", bytes.NewBufferString(`{"student_id":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
