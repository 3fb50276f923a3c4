package admission

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/domain/visit"
)

// Admitter moves the visit booked under an appointment code into target.
// *visit.Machine implements it.
type Admitter interface {
	AdmitByAppointment(ctx context.Context, code string, target visit.Status) (*visit.Record, error)
}

type Service struct {
	lookup   AppointmentLookup
	admitter Admitter
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(lookup AppointmentLookup, admitter Admitter, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		lookup:   lookup,
		admitter: admitter,
		loc:      loc,
		now:      time.Now,
		logger:   logger.With().Str("component", "admission").Logger(),
	}
}

// Check normalizes and looks up code, classifies it against the current
// clinic time and, on Admit only, asks the visit machine for the transition.
// Rejections come back as outcomes with a nil error. A failed transition is
// returned together with the outcome that led to it.
func (s *Service) Check(ctx context.Context, raw string, target visit.Status) (*Outcome, error) {
	if target == "" {
		target = visit.StatusQueued
	}
	if target != visit.StatusQueued && target != visit.StatusCurrent {
		return nil, visit.ErrInvalidTarget
	}
	code := NormalizeCode(raw)
	if code == "" {
		return nil, ErrEmptyCode
	}

	appt, err := s.lookup.LookupAppointment(ctx, code)
	if errors.Is(err, ErrAppointmentNotFound) {
		appt, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	decision, err := Classify(appt, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}
	out := &Outcome{Decision: decision, Code: code, Appointment: appt, Message: Message(decision)}
	s.logger.Info().Str("code", code).Str("decision", string(decision)).Msg("admission check")
	if decision.Rejected() {
		return out, nil
	}

	rec, err := s.admitter.AdmitByAppointment(ctx, appt.Code, target)
	if err != nil {
		out.Message = "Check-in could not be recorded: " + err.Error()
		return out, err
	}
	out.Visit = rec
	return out, nil
}
