package visit

import "context"

type Repository interface {
	// GetVisit returns ErrRecordNotFound when no record matches.
	GetVisit(ctx context.Context, recordNo string) (*Record, error)
	// GetByAppointmentCode matches the code case-insensitively.
	GetByAppointmentCode(ctx context.Context, code string) (*Record, error)
	// ListQueue returns the non-terminal records of a scope.
	ListQueue(ctx context.Context, scope Scope) ([]*Record, error)
	ListCurrentByEmployee(ctx context.Context, employeeID int64) ([]*Record, error)
	// SetVisitStatus moves recordNo from one status to another and returns
	// ErrStaleStatus when the stored status is no longer from.
	SetVisitStatus(ctx context.Context, recordNo string, from, to Status) error
}
