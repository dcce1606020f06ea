// Package evaluations defines the values exchanged between pipeline stages:
// the evaluation request submitted by an operator and the validated result.
package evaluations

import (
	"regexp"
	"strings"

	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
)

// Request field names, as reported by MissingFieldError.
const (
	FieldStudentID    = "student_id"
	FieldClinicalCase = "clinical_case"
	FieldTranscript   = "transcript"
	FieldRubric       = "rubric"
)

var strictStudentID = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

// EvaluationRequest is one evaluation attempt's input. It is built fresh per
// attempt and not mutated afterward.
type EvaluationRequest struct {
	StudentID    string          `json:"student_id"`
	ClinicalCase string          `json:"clinical_case"`
	Transcript   string          `json:"transcript"`
	Rubric       *rubrics.Rubric `json:"rubric"`
}

// NewRequest trims the student identifier and validates the request.
// The clinical case and transcript are kept verbatim for the prompt.
// strict enforces the 8-character alphanumeric student identifier.
func NewRequest(studentID, clinicalCase, transcript string, rubric *rubrics.Rubric, strict bool) (EvaluationRequest, error) {
	req := EvaluationRequest{
		StudentID:    strings.TrimSpace(studentID),
		ClinicalCase: clinicalCase,
		Transcript:   transcript,
		Rubric:       rubric,
	}
	return req, req.Validate(strict)
}

// Validate reports every empty field of the request at once.
func (r EvaluationRequest) Validate(strict bool) error {
	var missing []string
	if r.StudentID == "" {
		missing = append(missing, FieldStudentID)
	}
	if strings.TrimSpace(r.ClinicalCase) == "" {
		missing = append(missing, FieldClinicalCase)
	}
	if strings.TrimSpace(r.Transcript) == "" {
		missing = append(missing, FieldTranscript)
	}
	if r.Rubric == nil || len(r.Rubric.Criteria) == 0 {
		missing = append(missing, FieldRubric)
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}

	return ValidateStudentID(r.StudentID, strict)
}

// ValidateStudentID checks a student identifier. Empty identifiers are always
// rejected; strict mode also requires exactly 8 alphanumeric characters.
func ValidateStudentID(id string, strict bool) error {
	if strings.TrimSpace(id) == "" {
		return &MissingFieldError{Fields: []string{FieldStudentID}}
	}
	if strict && !strictStudentID.MatchString(id) {
		return &InvalidStudentIDError{ID: id}
	}
	return nil
}

// CriterionScore is the service's score for one rubric criterion.
type CriterionScore struct {
	Criterion     string  `json:"critère"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// EvaluationResult is a fully validated service response.
// Auxiliary holds the synthese and prise_en_charge scores in [0,1].
type EvaluationResult struct {
	Notes      []CriterionScore   `json:"notes"`
	Auxiliary  map[string]float64 `json:"auxiliary_scores"`
	FinalGrade float64            `json:"note_finale"`
	Comment    string             `json:"commentaire"`
}

// DiscreteTotal sums the criterion scores.
func (r *EvaluationResult) DiscreteTotal() float64 {
	var total float64
	for _, n := range r.Notes {
		total += n.Score
	}
	return total
}

// AuxiliaryScore returns the named auxiliary score, or 0 when the rubric defines none.
func (r *EvaluationResult) AuxiliaryScore(name string) float64 {
	return r.Auxiliary[name]
}
