package students

import (
	"context"

	"github.com/Algorithm-App/eval-med-app/pkg/pagination"
)

// System defines the public contract for student record operations.
type System interface {
	Handler() *Handler

	// UpsertIdentity inserts the identity row if absent. Repeated calls
	// leave the first evaluation timestamp unchanged.
	UpsertIdentity(ctx context.Context, studentID string) (*Student, error)
	// AppendResult stores one row per criterion score, sharing a new
	// attempt id and the batch fields, in a single transaction.
	AppendResult(ctx context.Context, cmd AppendCommand) (*Attempt, error)
	// RecordHumanGrade replaces any grade already held in the slot.
	RecordHumanGrade(ctx context.Context, cmd GradeCommand) (*HumanGrade, error)

	List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Student], error)
	Find(ctx context.Context, studentID string) (*Record, error)
	Export(ctx context.Context) (*Export, error)

	// RequestPurge issues a short-lived confirmation token.
	RequestPurge(ctx context.Context) (*PurgeRequest, error)
	// ConfirmPurge deletes every stored row of every kind in one transaction.
	ConfirmPurge(ctx context.Context, cmd PurgeConfirmation) (*Counts, error)
}
