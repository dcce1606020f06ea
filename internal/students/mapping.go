package students

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Algorithm-App/eval-med-app/pkg/query"
	"github.com/Algorithm-App/eval-med-app/pkg/repository"
)

var studentProjection = query.
	NewProjectionMap("", "students", "s").
	Project("student_id", "StudentID").
	Project("identity_hash", "IdentityHash").
	Project("first_evaluated_at", "FirstEvaluatedAt")

var studentSort = []query.SortField{
	{Field: "FirstEvaluatedAt", Descending: true},
	{Field: "StudentID"},
}

var resultProjection = query.
	NewProjectionMap("", "ai_results", "r").
	Project("id", "ID").
	Project("attempt_id", "AttemptID").
	Project("student_id", "StudentID").
	Project("position", "Position").
	Project("criterion", "Criterion").
	Project("score", "Score").
	Project("justification", "Justification").
	Project("synthese", "Synthese").
	Project("prise_en_charge", "PriseEnCharge").
	Project("note_finale", "FinalGrade").
	Project("commentaire", "Comment").
	Project("created_at", "CreatedAt")

var resultSort = query.SortField{Field: "ID"}

var gradeProjection = query.
	NewProjectionMap("", "human_grades", "g").
	Project("student_id", "StudentID").
	Project("slot", "Slot").
	Project("score", "Score").
	Project("recorded_at", "RecordedAt")

var gradeSort = []query.SortField{
	{Field: "StudentID"},
	{Field: "Slot"},
}

const (
	insertIdentity = `
		INSERT INTO students (student_id, identity_hash, first_evaluated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id) DO NOTHING`

	insertResult = `
		INSERT INTO ai_results (attempt_id, student_id, position, criterion, score, justification,
			synthese, prise_en_charge, note_finale, commentaire, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	upsertGrade = `
		INSERT INTO human_grades (student_id, slot, score, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, slot) DO UPDATE
		SET score = excluded.score, recorded_at = excluded.recorded_at`

	countAll = `
		SELECT
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM ai_results),
			(SELECT COUNT(*) FROM human_grades)`
)

// IdentityHash returns the hex SHA-256 digest stored beside a student identifier.
func IdentityHash(studentID string) string {
	sum := sha256.Sum256([]byte(studentID))
	return hex.EncodeToString(sum[:])
}

func scanStudent(s repository.Scanner) (Student, error) {
	var st Student
	err := s.Scan(&st.StudentID, &st.IdentityHash, &st.FirstEvaluatedAt)
	return st, err
}

func scanResult(s repository.Scanner) (AIResult, error) {
	var r AIResult
	err := s.Scan(
		&r.ID,
		&r.AttemptID,
		&r.StudentID,
		&r.Position,
		&r.Criterion,
		&r.Score,
		&r.Justification,
		&r.Synthese,
		&r.PriseEnCharge,
		&r.FinalGrade,
		&r.Comment,
		&r.CreatedAt,
	)
	return r, err
}

func scanGrade(s repository.Scanner) (HumanGrade, error) {
	var g HumanGrade
	err := s.Scan(&g.StudentID, &g.Slot, &g.Score, &g.RecordedAt)
	return g, err
}

func scanCounts(s repository.Scanner) (Counts, error) {
	var c Counts
	err := s.Scan(&c.Students, &c.AIResults, &c.HumanGrades)
	return c, err
}
