package attempts_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
	"github.com/Algorithm-App/eval-med-app/migrations"
	"github.com/Algorithm-App/eval-med-app/pkg/lifecycle"
	"github.com/Algorithm-App/eval-med-app/pkg/pagination"
	"github.com/Algorithm-App/eval-med-app/pkg/storage"
)

const reply = `{"notes":[
{"critère":"Se présente","score":1,"justification":"ok"},
{"critère":"Recherche les signes de gravité","score":1,"justification":"partiel"}],
"synthese":0.5,"prise_en_charge":0.5,"note_finale":11,"commentaire":"Correct."}`

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

type uploaded struct {
	key         string
	contentType string
	data        string
}

type mockStorage struct {
	mu        sync.Mutex
	uploads   []uploaded
	uploadErr error
}

func (m *mockStorage) Start(*lifecycle.Coordinator) error { return nil }

func (m *mockStorage) Upload(_ context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, _ := io.ReadAll(reader)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, uploaded{key: key, contentType: contentType, data: string(data)})
	return nil
}

func (m *mockStorage) List(context.Context, string, string, int32) (*storage.BlobList, error) {
	return &storage.BlobList{}, nil
}

func (m *mockStorage) Find(context.Context, string) (*storage.BlobMeta, error) {
	return nil, storage.ErrNotFound
}

func (m *mockStorage) Download(context.Context, string) (*storage.BlobResult, error) {
	return nil, storage.ErrNotFound
}

func testRubric() *rubrics.Rubric {
	return &rubrics.Rubric{
		Format: rubrics.FormatJSON,
		Criteria: []rubrics.Criterion{
			{Name: "Se présente", MaxPoints: 1},
			{Name: "Recherche les signes de gravité", MaxPoints: 2},
		},
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

func newStudents(t *testing.T) students.System {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := migrations.Up(db, migrations.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return students.New(db, logger, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}, false)
}

func newSystem(t *testing.T, a agent.Client, store storage.System) (attempts.System, students.System) {
	t.Helper()
	return newSystemWithRuntime(t, &workflow.Runtime{Agent: a}, store)
}

func newSystemWithRuntime(t *testing.T, rt *workflow.Runtime, store storage.System) (attempts.System, students.System) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newStudents(t)
	rt.Logger = logger
	return attempts.New(rt, st, store, logger), st
}

// blockingAgent answers once release is closed, or fails when its context ends.
func blockingAgent(calls *atomic.Int32, started, release chan struct{}) *mockAgent {
	return &mockAgent{
		completeFn: func(ctx context.Context, _ agent.Credentials, _ string) (string, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			select {
			case <-release:
				return reply, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

func replyAgent(calls *atomic.Int32) *mockAgent {
	return &mockAgent{
		completeFn: func(context.Context, agent.Credentials, string) (string, error) {
			if calls != nil {
				calls.Add(1)
			}
			return reply, nil
		},
		transcribeFn: func(context.Context, agent.Credentials, agent.Audio) (string, error) {
			return "Bonjour, je vous écoute.", nil
		},
	}
}

func TestEvaluateStoresAttempt(t *testing.T) {
	sys, st := newSystem(t, replyAgent(nil), nil)

	ev, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: validInput()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if ev.StudentID != "AB12CD34" {
		t.Errorf("StudentID = %q", ev.StudentID)
	}
	if ev.FinalGrade != 11 {
		t.Errorf("FinalGrade = %v, want 11", ev.FinalGrade)
	}
	if ev.Shared {
		t.Error("Shared = true for a lone submission")
	}
	if ev.RecordingKey != "" {
		t.Errorf("RecordingKey = %q, want empty without audio", ev.RecordingKey)
	}

	rec, err := st.Find(context.Background(), "AB12CD34")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rec.Attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(rec.Attempts))
	}
	if rec.Attempts[0].AttemptID != ev.AttemptID {
		t.Errorf("stored attempt %s, returned %s", rec.Attempts[0].AttemptID, ev.AttemptID)
	}
	if len(rec.Attempts[0].Notes) != 2 {
		t.Errorf("stored notes = %d, want 2", len(rec.Attempts[0].Notes))
	}
}

func TestEvaluateFailureStoresNothing(t *testing.T) {
	a := &mockAgent{
		completeFn: func(context.Context, agent.Credentials, string) (string, error) {
			return "Je ne peux pas évaluer cette transcription.", nil
		},
	}
	sys, st := newSystem(t, a, nil)

	_, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: validInput()})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if got := attempts.MapHTTPStatus(err); got != 422 {
		t.Errorf("status = %d, want 422", got)
	}

	if _, err := st.Find(context.Background(), "AB12CD34"); !errors.Is(err, students.ErrNotFound) {
		t.Errorf("Find err = %v, want ErrNotFound", err)
	}
}

func TestEvaluateCoalescesIdenticalSubmissions(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	a := &mockAgent{
		completeFn: func(context.Context, agent.Credentials, string) (string, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			return reply, nil
		},
	}
	sys, st := newSystem(t, a, nil)

	var wg sync.WaitGroup
	evs := make([]*attempts.Evaluation, 2)
	errs := make([]error, 2)

	submit := func(i int) {
		defer wg.Done()
		evs[i], errs[i] = sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: validInput()})
	}

	wg.Add(1)
	go submit(0)
	<-started

	wg.Add(1)
	go submit(1)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Complete calls = %d, want 1", n)
	}
	if evs[0].AttemptID != evs[1].AttemptID {
		t.Error("coalesced submissions returned different attempts")
	}
	if !evs[0].Shared || !evs[1].Shared {
		t.Error("coalesced submissions should report Shared")
	}

	rec, err := st.Find(context.Background(), "AB12CD34")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rec.Attempts) != 1 {
		t.Errorf("stored attempts = %d, want 1", len(rec.Attempts))
	}
}

func TestEvaluateSurvivesFirstCallerCancel(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	sys, st := newSystem(t, blockingAgent(&calls, started, release), nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := sys.Evaluate(firstCtx, attempts.EvaluateCommand{Input: validInput()})
		firstErr <- err
	}()
	<-started

	type outcome struct {
		ev  *attempts.Evaluation
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		ev, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: validInput()})
		second <- outcome{ev, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller err = %v, want context.Canceled", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("second caller: %v", got.err)
	}
	if !got.ev.Shared {
		t.Error("second caller should share the in-flight evaluation")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Complete calls = %d, want 1", n)
	}

	rec, err := st.Find(context.Background(), "AB12CD34")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rec.Attempts) != 1 || rec.Attempts[0].AttemptID != got.ev.AttemptID {
		t.Errorf("stored attempts = %+v, want %s", rec.Attempts, got.ev.AttemptID)
	}
}

func TestEvaluateAbandonedByEveryCallerIsCancelled(t *testing.T) {
	started := make(chan struct{})
	observed := make(chan error, 1)
	a := &mockAgent{
		completeFn: func(ctx context.Context, _ agent.Credentials, _ string) (string, error) {
			close(started)
			<-ctx.Done()
			observed <- ctx.Err()
			return "", ctx.Err()
		},
	}
	sys, st := newSystem(t, a, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sys.Evaluate(ctx, attempts.EvaluateCommand{Input: validInput()})
		done <- err
	}()
	<-started
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	select {
	case err := <-observed:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("agent context err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("shared evaluation kept running after its only caller left")
	}

	if _, err := st.Find(context.Background(), "AB12CD34"); !errors.Is(err, students.ErrNotFound) {
		t.Errorf("abandoned evaluation stored a record: %v", err)
	}
}

func TestEvaluateBoundedByRuntimeTimeout(t *testing.T) {
	a := &mockAgent{
		completeFn: func(ctx context.Context, _ agent.Credentials, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	sys, _ := newSystemWithRuntime(t, &workflow.Runtime{Agent: a, Timeout: 20 * time.Millisecond}, nil)

	_, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: validInput()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestEvaluateSequentialResubmissionAppends(t *testing.T) {
	var calls atomic.Int32
	sys, st := newSystem(t, replyAgent(&calls), nil)

	for range 2 {
		if _, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: validInput()}); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("Complete calls = %d, want 2", n)
	}
	rec, err := st.Find(context.Background(), "AB12CD34")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(rec.Attempts) != 2 {
		t.Errorf("stored attempts = %d, want 2", len(rec.Attempts))
	}
}

func TestEvaluateArchivesAudio(t *testing.T) {
	store := &mockStorage{}
	sys, _ := newSystem(t, replyAgent(nil), store)

	in := validInput()
	in.Transcript = ""
	in.Audio = &agent.Audio{Filename: "station3.mp3", Data: []byte("ID3-audio"), Language: "fr"}

	ev, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: in})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if !ev.Transcribed || ev.Transcript != "Bonjour, je vous écoute." {
		t.Errorf("transcript = %q, transcribed = %v", ev.Transcript, ev.Transcribed)
	}
	if len(store.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(store.uploads))
	}

	up := store.uploads[0]
	if up.key != ev.RecordingKey {
		t.Errorf("RecordingKey = %q, uploaded %q", ev.RecordingKey, up.key)
	}
	if !strings.HasPrefix(up.key, "recordings/AB12CD34/") || !strings.HasSuffix(up.key, ".mp3") {
		t.Errorf("key = %q", up.key)
	}
	if up.data != "ID3-audio" {
		t.Errorf("data = %q", up.data)
	}
}

func TestArchiveFailureDoesNotFailEvaluation(t *testing.T) {
	store := &mockStorage{uploadErr: errors.New("container unreachable")}
	sys, _ := newSystem(t, replyAgent(nil), store)

	in := validInput()
	in.Transcript = ""
	in.Audio = &agent.Audio{Filename: "a.wav", Data: []byte("RIFF")}

	ev, err := sys.Evaluate(context.Background(), attempts.EvaluateCommand{Input: in})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.RecordingKey != "" {
		t.Errorf("RecordingKey = %q, want empty", ev.RecordingKey)
	}
}

func TestTranscribe(t *testing.T) {
	store := &mockStorage{}
	sys, st := newSystem(t, replyAgent(nil), store)

	tr, err := sys.Transcribe(context.Background(), attempts.TranscribeCommand{
		StudentID: " AB12CD34 ",
		Audio:     agent.Audio{Filename: "a.wav", Data: []byte("RIFF"), Language: "fr"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if tr.StudentID != "AB12CD34" || tr.Transcript != "Bonjour, je vous écoute." || tr.Language != "fr" {
		t.Errorf("transcription = %+v", tr)
	}
	if len(store.uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(store.uploads))
	}

	if _, err := st.Find(context.Background(), "AB12CD34"); !errors.Is(err, students.ErrNotFound) {
		t.Errorf("transcription created a record: %v", err)
	}
}

func TestTranscribeRequiresStudentID(t *testing.T) {
	var called bool
	a := &mockAgent{
		transcribeFn: func(context.Context, agent.Credentials, agent.Audio) (string, error) {
			called = true
			return "", nil
		},
	}
	sys, _ := newSystem(t, a, nil)

	_, err := sys.Transcribe(context.Background(), attempts.TranscribeCommand{
		Audio: agent.Audio{Data: []byte("RIFF")},
	})
	if !errors.Is(err, evaluations.ErrMissingField) {
		t.Errorf("err = %v, want ErrMissingField", err)
	}
	if called {
		t.Error("Transcribe reached the agent without a student ID")
	}
}

func TestRecordingKey(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))
	got := attempts.RecordingKey("AB12CD34", at, ".wav")
	if want := "recordings/AB12CD34/20260314T082653Z.wav"; got != want {
		t.Errorf("RecordingKey = %q, want %q", got, want)
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"file too large", attempts.ErrFileTooLarge, 413},
		{"form", &attempts.FormError{Field: "audio", Err: errors.New("bad part")}, 400},
		{"missing field", &evaluations.MissingFieldError{Fields: []string{"transcript"}}, 400},
		{"empty rubric", &rubrics.EmptyRubricError{Format: rubrics.FormatOutline}, 422},
		{"service", &agent.ServiceUnavailableError{Service: agent.ServiceReasoning, Err: errors.New("down")}, 503},
		{"not found", students.ErrNotFound, 404},
		{"unknown", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attempts.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
