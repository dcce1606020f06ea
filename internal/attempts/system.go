package attempts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
	"github.com/Algorithm-App/eval-med-app/pkg/storage"
)

// RecordingPrefix is the blob key prefix under which submitted audio is archived.
const RecordingPrefix = "recordings"

// System defines the public contract for evaluation attempts.
type System interface {
	Handler(maxUploadSize int64) *Handler

	// Evaluate grades a submission and stores the validated result.
	// Identical submissions in flight at the same time are graded and stored once.
	Evaluate(ctx context.Context, cmd EvaluateCommand) (*Evaluation, error)
	// Transcribe converts a recording to text without storing the text.
	Transcribe(ctx context.Context, cmd TranscribeCommand) (*Transcription, error)
}

type system struct {
	runtime  *workflow.Runtime
	students students.System
	storage  storage.System
	logger   *slog.Logger
	now      func() time.Time
	flight   singleflight.Group

	mu      sync.Mutex
	waiting map[string]*waiters
}

// waiters counts the callers attached to one in-flight submission. The shared
// evaluation is cancelled only after every one of them has gone.
type waiters struct {
	count  int
	cancel context.CancelFunc
}

// New creates the attempt system. store may be nil, which disables
// recording archival.
func New(
	runtime *workflow.Runtime,
	studentsSystem students.System,
	store storage.System,
	logger *slog.Logger,
) System {
	return &system{
		runtime:  runtime,
		students: studentsSystem,
		storage:  store,
		logger:   logger.With("system", "attempts"),
		now:      func() time.Time { return time.Now().UTC() },
		waiting:  make(map[string]*waiters),
	}
}

func (s *system) Handler(maxUploadSize int64) *Handler {
	return NewHandler(s, s.logger, maxUploadSize)
}

func (s *system) Evaluate(ctx context.Context, cmd EvaluateCommand) (*Evaluation, error) {
	key := submissionKey(cmd.Input)
	w := s.join(key)

	ch := s.flight.DoChan(key, func() (any, error) {
		shared, cancel := s.detach(ctx)
		defer cancel()
		s.attach(w, cancel)
		return s.evaluate(shared, cmd)
	})

	select {
	case res := <-ch:
		s.leave(key, w, false)
		if res.Err != nil {
			return nil, res.Err
		}
		ev := *res.Val.(*Evaluation)
		ev.Shared = res.Shared
		return &ev, nil
	case <-ctx.Done():
		s.leave(key, w, true)
		return nil, fmt.Errorf("evaluate: %w", ctx.Err())
	}
}

// detach derives the context for a shared evaluation. It outlives any single
// caller and is bounded by the runtime timeout.
func (s *system) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.runtime.Timeout > 0 {
		return context.WithTimeout(ctx, s.runtime.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *system) join(key string) *waiters {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.waiting[key]
	if !ok {
		w = &waiters{}
		s.waiting[key] = w
	}
	w.count++
	return w
}

func (s *system) attach(w *waiters, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.count == 0 {
		cancel()
		return
	}
	w.cancel = cancel
}

// leave detaches a caller. When the last caller abandons the submission the
// shared evaluation is cancelled and forgotten, so a later identical
// submission starts afresh.
func (s *system) leave(key string, w *waiters, abandoned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.count--
	if w.count > 0 {
		return
	}
	if s.waiting[key] == w {
		delete(s.waiting, key)
	}
	if abandoned {
		s.flight.Forget(key)
		if w.cancel != nil {
			w.cancel()
		}
	}
}

func (s *system) evaluate(ctx context.Context, cmd EvaluateCommand) (*Evaluation, error) {
	res, err := workflow.Execute(ctx, s.runtime, cmd.Input)
	if err != nil {
		return nil, err
	}

	attempt, err := s.students.AppendResult(ctx, students.AppendCommand{
		StudentID: res.StudentID,
		Result:    res.Evaluation,
	})
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Attempt:     attempt,
		StudentID:   res.StudentID,
		Transcript:  res.Transcript,
		Transcribed: res.Transcribed,
		PromptHash:  res.PromptHash,
	}
	if res.Transcribed {
		ev.RecordingKey = s.archive(ctx, res.StudentID, *cmd.Audio)
	}

	s.logger.Info(
		"evaluation stored",
		"student_id", res.StudentID,
		"attempt_id", attempt.AttemptID,
		"final_grade", res.Evaluation.FinalGrade,
		"transcribed", res.Transcribed,
	)
	return ev, nil
}

func (s *system) Transcribe(ctx context.Context, cmd TranscribeCommand) (*Transcription, error) {
	studentID := strings.TrimSpace(cmd.StudentID)
	if err := evaluations.ValidateStudentID(studentID, s.runtime.StrictStudentID); err != nil {
		return nil, err
	}

	text, err := s.runtime.Agent.Transcribe(ctx, cmd.Credentials, cmd.Audio)
	if err != nil {
		return nil, err
	}

	t := &Transcription{
		StudentID:    studentID,
		Transcript:   text,
		Language:     cmd.Audio.Language,
		RecordingKey: s.archive(ctx, studentID, cmd.Audio),
	}

	s.logger.Info("transcription completed", "student_id", studentID, "chars", len(text))
	return t, nil
}

// archive stores audio under recordings/<student_id>/<timestamp><ext> and
// returns the key. Archival is best effort; failures are logged and yield "".
func (s *system) archive(ctx context.Context, studentID string, audio agent.Audio) string {
	if s.storage == nil {
		return ""
	}

	ext := path.Ext(audio.Filename)
	if ext == "" {
		ext = ".wav"
	}
	key := RecordingKey(studentID, s.now(), ext)

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.storage.Upload(ctx, key, bytes.NewReader(audio.Data), contentType); err != nil {
		s.logger.Warn("recording archive failed", "student_id", studentID, "key", key, "error", err)
		return ""
	}
	return key
}

// RecordingKey builds the archive key for a recording made at t.
func RecordingKey(studentID string, t time.Time, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", RecordingPrefix, studentID, t.UTC().Format("20060102T150405Z"), ext)
}

// submissionKey identifies a submission by every input that affects its grade.
func submissionKey(in workflow.Input) string {
	h := sha256.New()
	for _, part := range []string{
		in.Credentials.APIKey,
		strings.TrimSpace(in.StudentID),
		in.ClinicalCase,
		in.Transcript,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if in.Audio != nil {
		h.Write(in.Audio.Data)
		h.Write([]byte{0})
	}
	if in.Rubric != nil {
		json.NewEncoder(h).Encode(in.Rubric)
	}
	return hex.EncodeToString(h.Sum(nil))
}
