package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/prompts"
	"github.com/Algorithm-App/eval-med-app/internal/results"
)

// audioPlaceholder stands in for a transcript that has not been produced yet,
// so the other fields are checked before any audio is sent out.
const audioPlaceholder = "(audio)"

type stage struct {
	name string
	run  func(ctx context.Context, rt *Runtime, s *state) error
}

func validateStage(_ context.Context, rt *Runtime, s *state) error {
	transcript := s.input.Transcript
	if strings.TrimSpace(transcript) == "" && s.input.HasAudio() {
		transcript = audioPlaceholder
	}

	_, err := evaluations.NewRequest(
		s.input.StudentID,
		s.input.ClinicalCase,
		transcript,
		s.input.Rubric,
		rt.StrictStudentID,
	)
	return err
}

func transcribeStage(ctx context.Context, rt *Runtime, s *state) error {
	text, err := rt.Agent.Transcribe(ctx, s.input.Credentials, *s.input.Audio)
	if err != nil {
		return err
	}

	s.transcript = text
	s.transcribed = true
	rt.Logger.InfoContext(ctx, "transcribe stage complete", "student_id", s.input.StudentID, "chars", len(text))
	return nil
}

func promptStage(ctx context.Context, rt *Runtime, s *state) error {
	req, err := evaluations.NewRequest(
		s.input.StudentID,
		s.input.ClinicalCase,
		s.transcript,
		s.input.Rubric,
		rt.StrictStudentID,
	)
	if err != nil {
		return err
	}

	s.request = req
	s.prompt = prompts.Build(req)
	s.promptHash = digest(s.prompt)

	rt.Logger.InfoContext(
		ctx, "prompt stage complete",
		"student_id", req.StudentID,
		"criteria", len(req.Rubric.Criteria),
		"prompt_hash", s.promptHash,
	)
	return nil
}

func invokeStage(ctx context.Context, rt *Runtime, s *state) error {
	raw, err := rt.Agent.Complete(ctx, s.input.Credentials, s.prompt)
	if err != nil {
		return err
	}

	s.raw = raw
	rt.Logger.InfoContext(ctx, "invoke stage complete", "student_id", s.request.StudentID, "reply_chars", len(raw))
	return nil
}

func parseStage(ctx context.Context, rt *Runtime, s *state) error {
	res, err := results.Parse(s.raw, s.request.Rubric)
	if err != nil {
		return err
	}

	s.result = res
	rt.Logger.InfoContext(
		ctx, "parse stage complete",
		"student_id", s.request.StudentID,
		"notes", len(res.Notes),
		"final_grade", res.FinalGrade,
	)
	return nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
