package workflow

import (
	"time"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
)

// Stage names, in execution order. StageTranscribe runs only when the
// input carries audio and no transcript.
const (
	StageValidate   = "validate"
	StageTranscribe = "transcribe"
	StagePrompt     = "prompt"
	StageInvoke     = "invoke"
	StageParse      = "parse"
)

// Input is one evaluation submission. Either Transcript or Audio must be set;
// Transcript wins when both are.
type Input struct {
	StudentID    string
	ClinicalCase string
	Transcript   string
	Audio        *agent.Audio
	Rubric       *rubrics.Rubric
	Credentials  agent.Credentials
}

// HasAudio reports whether the input carries a non-empty recording.
func (in Input) HasAudio() bool {
	return in.Audio != nil && len(in.Audio.Data) > 0
}

// Result is the outcome of a completed workflow. Nothing in it has been persisted.
type Result struct {
	StudentID   string                        `json:"student_id"`
	Transcript  string                        `json:"transcript"`
	Transcribed bool                          `json:"transcribed"`
	PromptHash  string                        `json:"prompt_hash"`
	Evaluation  *evaluations.EvaluationResult `json:"evaluation"`
	Raw         string                        `json:"-"`
	CompletedAt time.Time                     `json:"completed_at"`
}

// state is the working set passed between stages.
type state struct {
	input       Input
	transcript  string
	transcribed bool
	request     evaluations.EvaluationRequest
	prompt      string
	promptHash  string
	raw         string
	result      *evaluations.EvaluationResult
}
