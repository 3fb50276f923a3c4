package admission

import (
	"errors"
	"strings"

	"github.com/ehr/frontdesk/internal/domain/visit"
)

// Decision is the outcome of classifying an appointment code at an instant.
type Decision string

const (
	DecisionAdmit             Decision = "Admit"
	DecisionFutureAppointment Decision = "FutureAppointment"
	DecisionTooEarly          Decision = "TooEarly"
	DecisionTooLate           Decision = "TooLate"
	DecisionExpired           Decision = "Expired"
	DecisionNotFound          Decision = "NotFound"
)

// Rejected reports whether d is a classified refusal rather than an admission.
func (d Decision) Rejected() bool {
	return d != DecisionAdmit
}

// Appointment is the booking an appointment code resolves to. DateScheduled
// is YYYY-MM-DD and TimeScheduled is 24-hour HH:MM in the clinic time zone.
type Appointment struct {
	Code          string `json:"appointment_code"`
	PatientID     int64  `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	DoctorID      int64  `json:"doctor_id"`
	DoctorName    string `json:"doctor_name"`
	DateScheduled string `json:"date_scheduled"`
	TimeScheduled string `json:"time_scheduled"`
}

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrEmptyCode           = errors.New("appointment code is empty")
)

const bom = "\uFEFF"

// NormalizeCode strips a leading byte-order mark, trims the code and
// collapses internal whitespace runs to one space.
func NormalizeCode(raw string) string {
	raw = strings.TrimPrefix(raw, bom)
	return strings.Join(strings.Fields(raw), " ")
}

// Outcome is what the operator sees after a check.
type Outcome struct {
	Decision    Decision      `json:"decision"`
	Code        string        `json:"code"`
	Appointment *Appointment  `json:"appointment,omitempty"`
	Visit       *visit.Record `json:"visit,omitempty"`
	Message     string        `json:"message"`
}

var messages = map[Decision]string{
	DecisionAdmit:             "Patient checked in.",
	DecisionFutureAppointment: "This appointment is scheduled for a later date.",
	DecisionTooEarly:          "Too early: check-in opens 30 minutes before the appointment time.",
	DecisionTooLate:           "Too late: the 30 minute grace period for this appointment has passed.",
	DecisionExpired:           "This appointment date has already passed.",
	DecisionNotFound:          "No appointment matches this code.",
}

// Message returns the operator-facing text for d.
func Message(d Decision) string {
	return messages[d]
}
