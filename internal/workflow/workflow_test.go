package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/results"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
)

type mockAgent struct {
	completeFn   func(ctx context.Context, creds agent.Credentials, prompt string) (string, error)
	transcribeFn func(ctx context.Context, creds agent.Credentials, audio agent.Audio) (string, error)
}

func (m *mockAgent) Complete(ctx context.Context, creds agent.Credentials, prompt string) (string, error) {
	return m.completeFn(ctx, creds, prompt)
}

func (m *mockAgent) Transcribe(ctx context.Context, creds agent.Credentials, audio agent.Audio) (string, error) {
	return m.transcribeFn(ctx, creds, audio)
}

const reply = `{"notes":[
{"critère":"Se présente","score":1,"justification":"ok"},
{"critère":"Recherche les signes de gravité","score":1,"justification":"partiel"}],
"synthese":0.5,"prise_en_charge":0.5,"note_finale":11,"commentaire":"Correct."}`

func testRubric() *rubrics.Rubric {
	return &rubrics.Rubric{
		Format: rubrics.FormatJSON,
		Criteria: []rubrics.Criterion{
			{Name: "Se présente", MaxPoints: 1},
			{Name: "Recherche les signes de gravité", MaxPoints: 2},
		},
	}
}

func newRuntime(a agent.Client) *workflow.Runtime {
	return &workflow.Runtime{
		Agent:  a,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func validInput() workflow.Input {
	return workflow.Input{
		StudentID:    "AB12CD34",
		ClinicalCase: "Douleur thoracique chez un homme de 55 ans.",
		Transcript:   "Bonjour, je suis l'étudiant...",
		Rubric:       testRubric(),
	}
}

func TestExecuteWithTranscript(t *testing.T) {
	var prompt string
	a := &mockAgent{
		completeFn: func(_ context.Context, _ agent.Credentials, p string) (string, error) {
			prompt = p
			return "Voici :\n" + reply, nil
		},
		transcribeFn: func(context.Context, agent.Credentials, agent.Audio) (string, error) {
			t.Fatal("Transcribe called with a transcript present")
			return "", nil
		},
	}

	got, err := workflow.Execute(context.Background(), newRuntime(a), validInput())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got.Transcribed {
		t.Error("Transcribed = true, want false")
	}
	if got.Evaluation.FinalGrade != 11 {
		t.Errorf("FinalGrade = %v, want 11", got.Evaluation.FinalGrade)
	}
	if len(got.PromptHash) != 64 {
		t.Errorf("PromptHash = %q", got.PromptHash)
	}
	if !strings.Contains(prompt, "AB12CD34") || !strings.Contains(prompt, "Douleur thoracique") {
		t.Error("prompt does not carry the request fields")
	}
}

func TestExecuteTranscribesAudio(t *testing.T) {
	var gotAudio agent.Audio
	a := &mockAgent{
		transcribeFn: func(_ context.Context, _ agent.Credentials, audio agent.Audio) (string, error) {
			gotAudio = audio
			return "Transcription de la réponse orale.", nil
		},
		completeFn: func(_ context.Context, _ agent.Credentials, p string) (string, error) {
			if !strings.Contains(p, "Transcription de la réponse orale.") {
				t.Error("prompt does not carry the transcript")
			}
			if strings.Contains(p, "(audio)") {
				t.Error("prompt carries the audio placeholder")
			}
			return reply, nil
		},
	}

	in := validInput()
	in.Transcript = ""
	in.Audio = &agent.Audio{Filename: "reponse.wav", Data: []byte("RIFF"), Language: "fr"}

	got, err := workflow.Execute(context.Background(), newRuntime(a), in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !got.Transcribed {
		t.Error("Transcribed = false, want true")
	}
	if got.Transcript != "Transcription de la réponse orale." {
		t.Errorf("Transcript = %q", got.Transcript)
	}
	if gotAudio.Filename != "reponse.wav" {
		t.Errorf("audio filename = %q", gotAudio.Filename)
	}
}

func TestExecuteValidatesBeforeCalls(t *testing.T) {
	var calls atomic.Int32
	a := &mockAgent{
		completeFn: func(context.Context, agent.Credentials, string) (string, error) {
			calls.Add(1)
			return reply, nil
		},
		transcribeFn: func(context.Context, agent.Credentials, agent.Audio) (string, error) {
			calls.Add(1)
			return "text", nil
		},
	}

	tests := []struct {
		name   string
		mutate func(*workflow.Input)
		want   []string
	}{
		{"missing case", func(in *workflow.Input) { in.ClinicalCase = " " }, []string{evaluations.FieldClinicalCase}},
		{"missing transcript and audio", func(in *workflow.Input) { in.Transcript = "" }, []string{evaluations.FieldTranscript}},
		{
			"missing case with audio",
			func(in *workflow.Input) {
				in.Transcript = ""
				in.ClinicalCase = ""
				in.Audio = &agent.Audio{Data: []byte("RIFF")}
			},
			[]string{evaluations.FieldClinicalCase},
		},
		{"missing rubric", func(in *workflow.Input) { in.Rubric = nil }, []string{evaluations.FieldRubric}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := workflow.Execute(context.Background(), newRuntime(a), in)

			var mf *evaluations.MissingFieldError
			if !errors.As(err, &mf) {
				t.Fatalf("error = %v, want MissingFieldError", err)
			}
			if strings.Join(mf.Fields, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Fields = %v, want %v", mf.Fields, tt.want)
			}
		})
	}

	if n := calls.Load(); n != 0 {
		t.Errorf("service calls = %d, want 0", n)
	}
}

func TestExecuteEmptyTranscription(t *testing.T) {
	a := &mockAgent{
		transcribeFn: func(context.Context, agent.Credentials, agent.Audio) (string, error) {
			return "   ", nil
		},
		completeFn: func(context.Context, agent.Credentials, string) (string, error) {
			t.Fatal("Complete called after an empty transcription")
			return "", nil
		},
	}

	in := validInput()
	in.Transcript = ""
	in.Audio = &agent.Audio{Data: []byte("RIFF")}

	_, err := workflow.Execute(context.Background(), newRuntime(a), in)
	if !errors.Is(err, evaluations.ErrMissingField) {
		t.Errorf("error = %v, want ErrMissingField", err)
	}
}

func TestExecuteStrictStudentID(t *testing.T) {
	rt := newRuntime(&mockAgent{})
	rt.StrictStudentID = true

	in := validInput()
	in.StudentID = "short"

	_, err := workflow.Execute(context.Background(), rt, in)
	if !errors.Is(err, evaluations.ErrInvalidStudentID) {
		t.Errorf("error = %v, want ErrInvalidStudentID", err)
	}
}

func TestExecutePropagatesFailures(t *testing.T) {
	unavailable := &agent.ServiceUnavailableError{Service: agent.ServiceReasoning, Err: errors.New("dial tcp: connection refused")}

	tests := []struct {
		name      string
		complete  func(context.Context, agent.Credentials, string) (string, error)
		wantErr   error
		wantStage string
	}{
		{
			name:      "service unavailable",
			complete:  func(context.Context, agent.Credentials, string) (string, error) { return "", unavailable },
			wantErr:   agent.ErrServiceUnavailable,
			wantStage: workflow.StageInvoke,
		},
		{
			name:      "schema violation",
			complete:  func(context.Context, agent.Credentials, string) (string, error) { return `{"notes": []}`, nil },
			wantErr:   results.ErrResultSchema,
			wantStage: workflow.StageParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Execute(context.Background(), newRuntime(&mockAgent{completeFn: tt.complete}), validInput())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), tt.wantStage+":") {
				t.Errorf("error %q not prefixed with stage %q", err, tt.wantStage)
			}
		})
	}
}
