// Package students persists evaluation outcomes per student: the identity
// row, append-only AI result batches, and up to two human grades.
package students

import (
	"time"

	"github.com/google/uuid"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
)

// Human grade bounds.
const (
	MinSlot  = 1
	MaxSlot  = 2
	MinGrade = 0.0
	MaxGrade = 20.0
)

// Student is the identity row, created on first evaluation and never changed.
type Student struct {
	StudentID        string    `json:"student_id"`
	IdentityHash     string    `json:"identity_hash"`
	FirstEvaluatedAt time.Time `json:"first_evaluated_at"`
}

// AIResult is one stored criterion row. Rows of the same attempt share
// AttemptID and the batch-level fields.
type AIResult struct {
	ID            int64     `json:"id"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	StudentID     string    `json:"student_id"`
	Position      int       `json:"position"`
	Criterion     string    `json:"critère"`
	Score         float64   `json:"score"`
	Justification string    `json:"justification"`
	Synthese      float64   `json:"synthese"`
	PriseEnCharge float64   `json:"prise_en_charge"`
	FinalGrade    float64   `json:"note_finale"`
	Comment       string    `json:"commentaire"`
	CreatedAt     time.Time `json:"created_at"`
}

// Attempt is one stored evaluation result, reassembled from its rows.
type Attempt struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	CreatedAt time.Time `json:"created_at"`
	evaluations.EvaluationResult
}

// HumanGrade is a grade entered by a human evaluator in slot 1 or 2.
type HumanGrade struct {
	StudentID  string    `json:"student_id"`
	Slot       int       `json:"slot"`
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Record is everything stored for one student. LatestFinalGrade is the
// final grade of the most recent attempt, shown beside the human grades.
type Record struct {
	Student
	Attempts         []Attempt    `json:"attempts"`
	HumanGrades      []HumanGrade `json:"human_grades"`
	LatestFinalGrade *float64     `json:"latest_final_grade,omitempty"`
}

// AppendCommand carries a validated result to store as a new attempt.
type AppendCommand struct {
	StudentID string
	Result    *evaluations.EvaluationResult
}

// GradeCommand records a human grade. An existing grade in the same slot is replaced.
type GradeCommand struct {
	StudentID string  `json:"student_id"`
	Slot      int     `json:"slot"`
	Score     float64 `json:"score"`
}

// Export holds every stored row, ordered for tabular output.
type Export struct {
	Students    []Student    `json:"students"`
	AIResults   []AIResult   `json:"ai_results"`
	HumanGrades []HumanGrade `json:"human_grades"`
}

// Counts reports stored row totals per kind.
type Counts struct {
	Students    int `json:"students"`
	AIResults   int `json:"ai_results"`
	HumanGrades int `json:"human_grades"`
}

// PurgeRequest is the first purge step. Token must be returned with an
// explicit acknowledgment before ExpiresAt.
type PurgeRequest struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Counts    Counts    `json:"counts"`
}

// PurgeConfirmation is the second purge step.
type PurgeConfirmation struct {
	Token        string `json:"token"`
	Acknowledged bool   `json:"acknowledged"`
}
