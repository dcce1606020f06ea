// Package workflow runs one evaluation end to end: validate the submission,
// transcribe audio when needed, build the prompt, invoke the reasoning
// service, and parse its reply. Persistence is left to the caller.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Execute runs the evaluation stages in order and stops at the first failure.
// Errors are wrapped with the stage name and keep their typed cause.
func Execute(ctx context.Context, rt *Runtime, in Input) (*Result, error) {
	s := &state{
		input:      in,
		transcript: in.Transcript,
	}

	for _, st := range plan(in) {
		if err := st.run(ctx, rt, s); err != nil {
			return nil, fmt.Errorf("%s: %w", st.name, err)
		}
	}

	return &Result{
		StudentID:   s.request.StudentID,
		Transcript:  s.request.Transcript,
		Transcribed: s.transcribed,
		PromptHash:  s.promptHash,
		Evaluation:  s.result,
		Raw:         s.raw,
		CompletedAt: time.Now().UTC(),
	}, nil
}

func plan(in Input) []stage {
	stages := []stage{{StageValidate, validateStage}}

	if strings.TrimSpace(in.Transcript) == "" && in.HasAudio() {
		stages = append(stages, stage{StageTranscribe, transcribeStage})
	}

	return append(stages,
		stage{StagePrompt, promptStage},
		stage{StageInvoke, invokeStage},
		stage{StageParse, parseStage},
	)
}
