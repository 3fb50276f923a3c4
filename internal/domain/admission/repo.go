package admission

import "context"

// AppointmentLookup resolves a normalized code case-insensitively.
type AppointmentLookup interface {
	LookupAppointment(ctx context.Context, code string) (*Appointment, error)
}
