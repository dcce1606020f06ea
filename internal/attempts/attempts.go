// Package attempts runs evaluation attempts submitted by an operator:
// the graded evaluation pipeline and standalone transcription.
package attempts

import (
	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
)

// EvaluateCommand is one graded submission.
type EvaluateCommand struct {
	workflow.Input
}

// Evaluation is a stored attempt with the context it was graded in.
// RecordingKey is set when the submitted audio was archived.
type Evaluation struct {
	*students.Attempt
	StudentID    string `json:"student_id"`
	Transcript   string `json:"transcript"`
	Transcribed  bool   `json:"transcribed"`
	PromptHash   string `json:"prompt_hash"`
	Shared       bool   `json:"shared"`
	RecordingKey string `json:"recording_key,omitempty"`
}

// TranscribeCommand is a standalone transcription request.
type TranscribeCommand struct {
	StudentID   string
	Audio       agent.Audio
	Credentials agent.Credentials
}

// Transcription is the text recovered from a recording. It is never stored.
type Transcription struct {
	StudentID    string `json:"student_id"`
	Transcript   string `json:"transcript"`
	Language     string `json:"language"`
	RecordingKey string `json:"recording_key,omitempty"`
}
