package admission

import (
	"fmt"
	"time"

	"github.com/ehr/frontdesk/internal/domain/visit"
)

// Window is how far either side of the scheduled time check-in is allowed.
const Window = 30 * time.Minute

// Classify decides whether appt can be checked in at now. Dates are compared
// in now's location, which callers set to the clinic time zone. Both window
// bounds are inclusive.
func Classify(appt *Appointment, now time.Time) (Decision, error) {
	if appt == nil {
		return DecisionNotFound, nil
	}

	today := now.Format(visit.DateLayout)
	switch {
	case appt.DateScheduled > today:
		return DecisionFutureAppointment, nil
	case appt.DateScheduled < today:
		return DecisionExpired, nil
	}

	scheduled, err := time.ParseInLocation(visit.DateLayout+" "+visit.ClockLayout,
		appt.DateScheduled+" "+appt.TimeScheduled, now.Location())
	if err != nil {
		return "", fmt.Errorf("appointment %s scheduled time: %w", appt.Code, err)
	}

	delta := now.Sub(scheduled)
	switch {
	case delta < -Window:
		return DecisionTooEarly, nil
	case delta > Window:
		return DecisionTooLate, nil
	}
	return DecisionAdmit, nil
}
