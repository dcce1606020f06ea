// Package results parses and validates the reasoning service's reply
// against the evaluation result schema.
package results

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/pkg/formatting"
)

// Result schema field names.
const (
	FieldNotes         = "notes"
	FieldCriterion     = "critère"
	FieldScore         = "score"
	FieldJustification = "justification"
	FieldFinalGrade    = "note_finale"
	FieldComment       = "commentaire"
)

var auxiliaryFields = []string{rubrics.ScaleSynthese, rubrics.ScalePriseEnCharge}

// Parse extracts the JSON object from raw (first "{" through last "}"),
// decodes it, and validates it against rubric. Missing fields are rejected,
// never defaulted; any violation yields a ResultSchemaError.
func Parse(raw string, rubric *rubrics.Rubric) (*evaluations.EvaluationResult, error) {
	span, err := formatting.ExtractObject(raw)
	if err != nil {
		return nil, &ResultSchemaError{Field: "response", Reason: "no JSON object found", Err: err}
	}

	top, err := decodeObject([]byte(span))
	if err != nil {
		return nil, &ResultSchemaError{Field: "response", Reason: "invalid JSON", Err: err}
	}

	notes, err := parseNotes(top, rubric)
	if err != nil {
		return nil, err
	}

	aux := make(map[string]float64, len(auxiliaryFields))
	for _, name := range auxiliaryFields {
		v, err := number(top, name, name)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 1 {
			return nil, schemaErr(name, "%v outside [0, 1]", v)
		}
		aux[name] = v
	}

	final, err := number(top, FieldFinalGrade, FieldFinalGrade)
	if err != nil {
		return nil, err
	}
	if final < 0 || final > float64(rubric.CompositeDenominator()) {
		return nil, schemaErr(FieldFinalGrade, "%v outside [0, %d]", final, rubric.CompositeDenominator())
	}

	comment, err := str(top, FieldComment, FieldComment)
	if err != nil {
		return nil, err
	}

	return &evaluations.EvaluationResult{
		Notes:      notes,
		Auxiliary:  aux,
		FinalGrade: final,
		Comment:    comment,
	}, nil
}

func parseNotes(top map[string]json.RawMessage, rubric *rubrics.Rubric) ([]evaluations.CriterionScore, error) {
	raw, ok := top[FieldNotes]
	if !ok {
		return nil, schemaErr(FieldNotes, "missing")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, schemaErr(FieldNotes, "expected an array")
	}
	if len(items) == 0 {
		return nil, schemaErr(FieldNotes, "empty")
	}

	notes := make([]evaluations.CriterionScore, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", FieldNotes, i)

		entry, err := decodeObject(item)
		if err != nil {
			return nil, schemaErr(field, "expected an object")
		}

		name, err := str(entry, FieldCriterion, field+"."+FieldCriterion)
		if err != nil {
			return nil, err
		}
		maxPoints, known := rubric.MaxPoints(name)
		if !known {
			return nil, schemaErr(field+"."+FieldCriterion, "%q is not a rubric criterion", name)
		}

		score, err := number(entry, FieldScore, field+"."+FieldScore)
		if err != nil {
			return nil, err
		}
		if score < 0 || score > float64(maxPoints) {
			return nil, schemaErr(field+"."+FieldScore, "%v outside [0, %d] for %q", score, maxPoints, name)
		}

		justification, err := str(entry, FieldJustification, field+"."+FieldJustification)
		if err != nil {
			return nil, err
		}

		notes = append(notes, evaluations.CriterionScore{
			Criterion:     name,
			Score:         score,
			Justification: justification,
		})
	}

	return notes, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("null is not an object")
	}
	return obj, nil
}

func number(obj map[string]json.RawMessage, key, field string) (float64, error) {
	raw, ok := obj[key]
	if !ok {
		return 0, schemaErr(field, "missing")
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return 0, schemaErr(field, "expected a number, got %s", raw)
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, schemaErr(field, "expected a number, got %s", raw)
	}
	return v, nil
}

func str(obj map[string]json.RawMessage, key, field string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", schemaErr(field, "missing")
	}

	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return "", schemaErr(field, "expected a string, got %s", raw)
	}
	return *s, nil
}
