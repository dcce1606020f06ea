package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Algorithm-App/eval-med-app/internal/evaluations"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/pkg/pagination"
	"github.com/Algorithm-App/eval-med-app/pkg/query"
	"github.com/Algorithm-App/eval-med-app/pkg/repository"
)

// PurgeTTL bounds the time between a purge request and its confirmation.
const PurgeTTL = 5 * time.Minute

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
	strict     bool
	now        func() time.Time

	mu     sync.Mutex
	purges map[string]time.Time
}

// New creates a student record repository implementing the System interface.
// strictStudentID applies the evaluation path's identifier rule to every write.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config, strictStudentID bool) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "students"),
		pagination: pagination,
		strict:     strictStudentID,
		now:        func() time.Time { return time.Now().UTC() },
		purges:     make(map[string]time.Time),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) UpsertIdentity(ctx context.Context, studentID string) (*Student, error) {
	studentID = strings.TrimSpace(studentID)
	if err := evaluations.ValidateStudentID(studentID, r.strict); err != nil {
		return nil, err
	}

	st, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Student, error) {
		if _, err := tx.ExecContext(ctx, insertIdentity, studentID, IdentityHash(studentID), r.now()); err != nil {
			return Student{}, writeErr("upsert identity", "students", err)
		}
		q, args := query.NewBuilder(studentProjection).BuildSingle("StudentID", studentID)
		return repository.QueryOne(ctx, tx, q, args, scanStudent)
	})
	if err != nil {
		return nil, r.mapWrite("upsert identity", "students", err)
	}

	r.logger.Info("student identity ensured", "student_id", st.StudentID)
	return &st, nil
}

func (r *repo) AppendResult(ctx context.Context, cmd AppendCommand) (*Attempt, error) {
	studentID := strings.TrimSpace(cmd.StudentID)
	if err := evaluations.ValidateStudentID(studentID, r.strict); err != nil {
		return nil, err
	}
	if cmd.Result == nil || len(cmd.Result.Notes) == 0 {
		return nil, ErrEmptyResult
	}

	res := cmd.Result
	attempt := Attempt{
		AttemptID:        uuid.New(),
		CreatedAt:        r.now(),
		EvaluationResult: *res,
	}

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, insertIdentity, studentID, IdentityHash(studentID), attempt.CreatedAt); err != nil {
			return struct{}{}, writeErr("upsert identity", "students", err)
		}
		for i, note := range res.Notes {
			if _, err := tx.ExecContext(
				ctx, insertResult,
				attempt.AttemptID,
				studentID,
				i,
				note.Criterion,
				note.Score,
				note.Justification,
				res.AuxiliaryScore(rubrics.ScaleSynthese),
				res.AuxiliaryScore(rubrics.ScalePriseEnCharge),
				res.FinalGrade,
				res.Comment,
				attempt.CreatedAt,
			); err != nil {
				return struct{}{}, writeErr("append result", "ai_results", err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, r.mapWrite("append result", "ai_results", err)
	}

	r.logger.Info(
		"ai result stored",
		"student_id", studentID,
		"attempt_id", attempt.AttemptID,
		"criteria", len(res.Notes),
		"final_grade", res.FinalGrade,
	)
	return &attempt, nil
}

func (r *repo) RecordHumanGrade(ctx context.Context, cmd GradeCommand) (*HumanGrade, error) {
	studentID := strings.TrimSpace(cmd.StudentID)
	if err := evaluations.ValidateStudentID(studentID, r.strict); err != nil {
		return nil, err
	}
	if cmd.Slot < MinSlot || cmd.Slot > MaxSlot {
		return nil, &InvalidGradeError{Field: "slot", Value: float64(cmd.Slot)}
	}
	if math.IsNaN(cmd.Score) || cmd.Score < MinGrade || cmd.Score > MaxGrade {
		return nil, &InvalidGradeError{Field: "score", Value: cmd.Score}
	}

	grade := HumanGrade{
		StudentID:  studentID,
		Slot:       cmd.Slot,
		Score:      cmd.Score,
		RecordedAt: r.now(),
	}

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, insertIdentity, studentID, IdentityHash(studentID), grade.RecordedAt); err != nil {
			return struct{}{}, writeErr("upsert identity", "students", err)
		}
		if _, err := tx.ExecContext(ctx, upsertGrade, grade.StudentID, grade.Slot, grade.Score, grade.RecordedAt); err != nil {
			return struct{}{}, writeErr("record grade", "human_grades", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, r.mapWrite("record grade", "human_grades", err)
	}

	r.logger.Info("human grade recorded", "student_id", studentID, "slot", grade.Slot, "score", grade.Score)
	return &grade, nil
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Student], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(studentProjection, studentSort...).
		WhereSearch(page.Search, "StudentID")

	if sort := page.Sort.Allowed(studentProjection.Has); len(sort) > 0 {
		qb.OrderByFields(sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanStudent)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, studentID string) (*Record, error) {
	q, args := query.NewBuilder(studentProjection).BuildSingle("StudentID", studentID)
	st, err := repository.QueryOne(ctx, r.db, q, args, scanStudent)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	q, args = query.NewBuilder(resultProjection, resultSort).
		WhereEquals("StudentID", studentID).
		Build()
	rows, err := repository.QueryMany(ctx, r.db, q, args, scanResult)
	if err != nil {
		return nil, fmt.Errorf("query ai results: %w", err)
	}

	q, args = query.NewBuilder(gradeProjection, gradeSort...).
		WhereEquals("StudentID", studentID).
		Build()
	grades, err := repository.QueryMany(ctx, r.db, q, args, scanGrade)
	if err != nil {
		return nil, fmt.Errorf("query human grades: %w", err)
	}

	rec := &Record{
		Student:     st,
		Attempts:    groupAttempts(rows),
		HumanGrades: grades,
	}
	if n := len(rec.Attempts); n > 0 {
		latest := rec.Attempts[n-1].FinalGrade
		rec.LatestFinalGrade = &latest
	}
	return rec, nil
}

func (r *repo) Export(ctx context.Context) (*Export, error) {
	return repository.WithTx(ctx, r.db, func(tx *sql.Tx) (*Export, error) {
		q, args := query.NewBuilder(studentProjection, query.SortField{Field: "StudentID"}).Build()
		students, err := repository.QueryMany(ctx, tx, q, args, scanStudent)
		if err != nil {
			return nil, fmt.Errorf("export students: %w", err)
		}

		q, args = query.NewBuilder(resultProjection, resultSort).Build()
		results, err := repository.QueryMany(ctx, tx, q, args, scanResult)
		if err != nil {
			return nil, fmt.Errorf("export ai results: %w", err)
		}

		q, args = query.NewBuilder(gradeProjection, gradeSort...).Build()
		grades, err := repository.QueryMany(ctx, tx, q, args, scanGrade)
		if err != nil {
			return nil, fmt.Errorf("export human grades: %w", err)
		}

		return &Export{
			Students:    students,
			AIResults:   results,
			HumanGrades: grades,
		}, nil
	})
}

func (r *repo) RequestPurge(ctx context.Context) (*PurgeRequest, error) {
	counts, err := repository.QueryOne(ctx, r.db, countAll, nil, scanCounts)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	now := r.now()
	req := &PurgeRequest{
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(PurgeTTL),
		Counts:    counts,
	}

	r.mu.Lock()
	for token, expires := range r.purges {
		if now.After(expires) {
			delete(r.purges, token)
		}
	}
	r.purges[req.Token] = req.ExpiresAt
	r.mu.Unlock()

	r.logger.Warn(
		"purge requested",
		"students", counts.Students,
		"ai_results", counts.AIResults,
		"human_grades", counts.HumanGrades,
		"expires_at", req.ExpiresAt,
	)
	return req, nil
}

func (r *repo) ConfirmPurge(ctx context.Context, cmd PurgeConfirmation) (*Counts, error) {
	if !cmd.Acknowledged {
		return nil, ErrPurgeNotAcknowledged
	}

	r.mu.Lock()
	expires, ok := r.purges[cmd.Token]
	if ok {
		delete(r.purges, cmd.Token)
	}
	r.mu.Unlock()

	if !ok || r.now().After(expires) {
		return nil, ErrPurgeToken
	}

	counts, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Counts, error) {
		var c Counts
		var n int64
		var err error

		if n, err = repository.ExecCount(ctx, tx, "DELETE FROM human_grades"); err != nil {
			return c, writeErr("purge", "human_grades", err)
		}
		c.HumanGrades = int(n)

		if n, err = repository.ExecCount(ctx, tx, "DELETE FROM ai_results"); err != nil {
			return c, writeErr("purge", "ai_results", err)
		}
		c.AIResults = int(n)

		if n, err = repository.ExecCount(ctx, tx, "DELETE FROM students"); err != nil {
			return c, writeErr("purge", "students", err)
		}
		c.Students = int(n)

		return c, nil
	})
	if err != nil {
		return nil, r.mapWrite("purge", "students", err)
	}

	r.logger.Warn(
		"records purged",
		"students", counts.Students,
		"ai_results", counts.AIResults,
		"human_grades", counts.HumanGrades,
	)
	return &counts, nil
}

// mapWrite wraps failures from a write transaction, including a failed
// begin or commit, in a StoreWriteError.
func (r *repo) mapWrite(op, table string, err error) error {
	var we *StoreWriteError
	if errors.As(err, &we) {
		return err
	}
	return writeErr(op, table, err)
}

// groupAttempts reassembles rows ordered by insertion into attempts,
// ordered by their first row.
func groupAttempts(rows []AIResult) []Attempt {
	attempts := make([]Attempt, 0)
	index := make(map[uuid.UUID]int)

	for _, row := range rows {
		i, ok := index[row.AttemptID]
		if !ok {
			i = len(attempts)
			index[row.AttemptID] = i
			attempts = append(attempts, Attempt{
				AttemptID: row.AttemptID,
				CreatedAt: row.CreatedAt,
				EvaluationResult: evaluations.EvaluationResult{
					Notes: make([]evaluations.CriterionScore, 0),
					Auxiliary: map[string]float64{
						rubrics.ScaleSynthese:      row.Synthese,
						rubrics.ScalePriseEnCharge: row.PriseEnCharge,
					},
					FinalGrade: row.FinalGrade,
					Comment:    row.Comment,
				},
			})
		}
		attempts[i].Notes = append(attempts[i].Notes, evaluations.CriterionScore{
			Criterion:     row.Criterion,
			Score:         row.Score,
			Justification: row.Justification,
		})
	}

	return attempts
}
