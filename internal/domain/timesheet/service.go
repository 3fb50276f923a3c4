package timesheet

import (
	"context"
	"fmt"
	"time"

	"github.com/ehr/frontdesk/internal/platform/db"
)

type Service struct {
	repo   Repository
	withTx db.TxFunc
	labels Labels
	loc    *time.Location
	now    func() time.Time
}

func NewService(repo Repository, withTx db.TxFunc, labels Labels, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, withTx: withTx, labels: labels, loc: loc, now: time.Now}
}

// Today is the current calendar day in the clinic location.
func (s *Service) Today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Service) Location() *time.Location { return s.loc }

// LoadWeek reads an employee's committed slots for the week containing date.
func (s *Service) LoadWeek(ctx context.Context, employeeID int64, date time.Time) (*Grid, error) {
	if employeeID == 0 {
		return nil, ErrNoDoctorSelected
	}
	week := ComputeWeek(date.In(s.loc))
	rows, err := s.repo.ListSlots(ctx, employeeID, week[0], week[6])
	if err != nil {
		return nil, fmt.Errorf("load timesheet for employee %d: %w", employeeID, err)
	}
	return NewGrid(employeeID, week[0], s.labels, rows)
}

// SaveResult counts the slots written and removed by SaveWeek.
type SaveResult struct {
	Written int `json:"written"`
	Removed int `json:"removed"`
}

// SaveWeek persists the grid's pending writes and removals in one
// transaction. The grid is left untouched when the write fails so the
// operator can retry without re-selecting.
func (s *Service) SaveWeek(ctx context.Context, g *Grid) (SaveResult, error) {
	writes := g.PendingWrites()
	removals := g.PendingRemovals()
	if len(writes) == 0 && len(removals) == 0 {
		return SaveResult{}, nil
	}

	err := s.withTx(ctx, func(ctx context.Context) error {
		if len(writes) > 0 {
			if err := s.repo.SaveSlots(ctx, writes); err != nil {
				return err
			}
		}
		if len(removals) > 0 {
			if err := s.repo.DeleteSlots(ctx, removals); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("save timesheet for employee %d: %w", g.EmployeeID(), err)
	}

	g.MarkCommitted(writes)
	g.MarkRemoved(removals)
	return SaveResult{Written: len(writes), Removed: len(removals)}, nil
}

// AvailableTimes lists the committed labels for one day, the legal
// appointment times when booking a visit with that doctor.
func (s *Service) AvailableTimes(ctx context.Context, employeeID int64, date time.Time) ([]string, error) {
	g, err := s.LoadWeek(ctx, employeeID, date)
	if err != nil {
		return nil, err
	}
	return g.CommittedOn(date.In(s.loc)), nil
}
