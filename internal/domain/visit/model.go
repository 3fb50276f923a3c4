package visit

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusQueued    Status = "Queued"
	StatusCurrent   Status = "Current"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// Terminal statuses are never re-opened.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusQueued, StatusCurrent, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type VisitType string

const (
	TypeScheduled VisitType = "Scheduled/Follow-Up"
	TypeWalkIn    VisitType = "Walk-in"
	TypeEmergency VisitType = "Emergency"
)

// Record is a queueable visit. DateScheduled is YYYY-MM-DD and
// TimeScheduled is 24-hour HH:MM, both in the clinic time zone.
type Record struct {
	RecordNo        string    `json:"record_no"`
	AppointmentCode string    `json:"appointment_code,omitempty"`
	PatientID       int64     `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	EmployeeID      int64     `json:"employee_id"`
	DoctorName      string    `json:"doctor_name"`
	Status          Status    `json:"visit_status"`
	Type            VisitType `json:"visit_type"`
	DateScheduled   string    `json:"date_scheduled"`
	TimeScheduled   string    `json:"time_scheduled"`
	PurposeTitle    *string   `json:"visit_purpose_title,omitempty"`
	ChiefComplaint  *string   `json:"visit_chief_complaint,omitempty"`
}

// Scheduled returns the scheduled instant in loc.
func (r *Record) Scheduled(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, r.DateScheduled+" "+r.TimeScheduled, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("record %s scheduled time: %w", r.RecordNo, err)
	}
	return t, nil
}

// Scope selects the queue for one doctor, or the whole clinic when
// EmployeeID is 0, on one calendar day.
type Scope struct {
	EmployeeID int64
	Date       time.Time
}

var (
	ErrRecordNotFound = errors.New("visit record not found")
	ErrInvalidTarget  = errors.New("admission target must be Queued or Current")

	// ErrTransitionConflict covers every transition the current state does
	// not allow, including races lost against another operator.
	ErrTransitionConflict = errors.New("visit transition conflict")

	ErrCurrentVisitExists = fmt.Errorf("%w: doctor already has a current visit", ErrTransitionConflict)
	ErrStaleStatus        = fmt.Errorf("%w: status changed since it was read", ErrTransitionConflict)
	ErrDoctorBusy         = fmt.Errorf("%w: another begin is in progress for this doctor", ErrTransitionConflict)
	ErrVisitElapsed       = fmt.Errorf("%w: visit date has passed", ErrTransitionConflict)
)

// allowed lists the legal moves out of each non-terminal status.
var allowed = map[Status][]Status{
	StatusScheduled: {StatusQueued, StatusCancelled},
	StatusQueued:    {StatusCurrent, StatusCancelled},
	StatusCurrent:   {StatusCompleted},
}

// CanTransition reports whether from may move to to. Self-transitions and
// moves out of terminal statuses are never allowed.
func CanTransition(from, to Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusChange is the payload of a visit.status event.
type StatusChange struct {
	RecordNo   string    `json:"record_no"`
	EmployeeID int64     `json:"employee_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	At         time.Time `json:"at"`
}
