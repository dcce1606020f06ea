package students

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportKind selects the table written by WriteCSV.
type ExportKind string

// Export kinds.
const (
	ExportAIResults   ExportKind = "ai"
	ExportHumanGrades ExportKind = "human"
	ExportStudents    ExportKind = "students"
)

// ParseExportKind accepts an empty value as ExportAIResults.
func ParseExportKind(s string) (ExportKind, error) {
	switch k := ExportKind(s); k {
	case "":
		return ExportAIResults, nil
	case ExportAIResults, ExportHumanGrades, ExportStudents:
		return k, nil
	default:
		return "", &InvalidExportKindError{Kind: s}
	}
}

// InvalidExportKindError reports an unknown export kind.
type InvalidExportKindError struct {
	Kind string
}

func (e *InvalidExportKindError) Error() string {
	return fmt.Sprintf("%s: %q (want ai, human or students)", ErrInvalidExportKind, e.Kind)
}

func (e *InvalidExportKindError) Unwrap() error { return ErrInvalidExportKind }

// FieldName returns the offending query parameter.
func (e *InvalidExportKindError) FieldName() string { return "kind" }

// CSV headers, one per export kind.
var (
	AIResultHeader = []string{
		"attempt_id", "student_id", "position", "critère", "score", "justification",
		"synthese", "prise_en_charge", "note_finale", "commentaire", "created_at",
	}
	HumanGradeHeader = []string{"student_id", "slot", "score", "recorded_at"}
	StudentHeader    = []string{"student_id", "identity_hash", "first_evaluated_at"}
)

// WriteCSV writes the rows of one export kind with a header line.
// Scores are written with the shortest representation that parses back exactly.
func WriteCSV(w io.Writer, exp *Export, kind ExportKind) error {
	cw := csv.NewWriter(w)

	var records [][]string
	switch kind {
	case ExportHumanGrades:
		records = append(records, HumanGradeHeader)
		for _, g := range exp.HumanGrades {
			records = append(records, []string{
				g.StudentID,
				strconv.Itoa(g.Slot),
				formatFloat(g.Score),
				formatTime(g.RecordedAt),
			})
		}
	case ExportStudents:
		records = append(records, StudentHeader)
		for _, s := range exp.Students {
			records = append(records, []string{
				s.StudentID,
				s.IdentityHash,
				formatTime(s.FirstEvaluatedAt),
			})
		}
	default:
		records = append(records, AIResultHeader)
		for _, r := range exp.AIResults {
			records = append(records, []string{
				r.AttemptID.String(),
				r.StudentID,
				strconv.Itoa(r.Position),
				r.Criterion,
				formatFloat(r.Score),
				r.Justification,
				formatFloat(r.Synthese),
				formatFloat(r.PriseEnCharge),
				formatFloat(r.FinalGrade),
				r.Comment,
				formatTime(r.CreatedAt),
			})
		}
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write %s csv: %w", kind, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
