package timesheet

import (
	"context"
	"time"
)

type Repository interface {
	// ListSlots returns an employee's slots with from <= date <= to.
	ListSlots(ctx context.Context, employeeID int64, from, to time.Time) ([]Slot, error)
	// SaveSlots inserts slots, ignoring ones already stored.
	SaveSlots(ctx context.Context, slots []Slot) error
	DeleteSlots(ctx context.Context, slots []Slot) error
}
