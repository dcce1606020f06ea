// Package prompts renders an evaluation request into the instruction sent to the reasoning service.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
)

// rubricLine fixes the serialized field order of one criterion.
type rubricLine struct {
	Criterion string `json:"critère"`
	Points    int    `json:"points"`
}

// Build renders req into a single prompt. Sections appear in a fixed order:
// role framing, student identifier, clinical case, transcript, rubric,
// instruction set, then the result schema. Identical requests yield identical prompts.
func Build(req evaluations.EvaluationRequest) string {
	var b strings.Builder

	b.WriteString(roleFraming)
	b.WriteString("\n\n")

	b.WriteString(contextHeader)
	b.WriteString("\n")
	fmt.Fprintf(&b, "- ID étudiant : %s\n", req.StudentID)
	fmt.Fprintf(&b, "- Cas clinique : %s\n", req.ClinicalCase)
	fmt.Fprintf(&b, "- Réponse de l'étudiant : %s\n", req.Transcript)
	fmt.Fprintf(&b, "- Grille d'évaluation : %s\n", serializeCriteria(req.Rubric))

	if req.Rubric.HasAuxiliary() {
		b.WriteString("\n")
		b.WriteString(scaleHeader)
		b.WriteString("\n")
		for _, scale := range req.Rubric.Auxiliary {
			fmt.Fprintf(&b, "- %s : %s\n", scale.Name, marshal(scale.Descriptors))
		}
	}

	b.WriteString("\n")
	b.WriteString(missionHeader)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, instructionSet, req.Rubric.DiscreteDenominator(), req.Rubric.CompositeDenominator())
	b.WriteString("\n\n")

	b.WriteString(fabricationGuard)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, resultSpec, req.Rubric.CompositeDenominator())
	b.WriteString("\n")

	return b.String()
}

func serializeCriteria(r *rubrics.Rubric) string {
	lines := make([]rubricLine, len(r.Criteria))
	for i, c := range r.Criteria {
		lines[i] = rubricLine{Criterion: c.Name, Points: c.MaxPoints}
	}
	return marshal(lines)
}

// marshal encodes v as compact JSON without HTML escaping.
// Map keys are emitted in sorted order.
func marshal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}
