package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/frontdesk/internal/platform/db"
)

type lookupPG struct{ pool *pgxpool.Pool }

func NewLookupPG(pool *pgxpool.Pool) AppointmentLookup { return &lookupPG{pool: pool} }

func (r *lookupPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *lookupPG) LookupAppointment(ctx context.Context, code string) (*Appointment, error) {
	var a Appointment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT a.code, a.patient_id, p.name, a.doctor_id, e.name,
			to_char(a.date_scheduled, 'YYYY-MM-DD'), to_char(a.time_scheduled, 'HH24:MI')
		FROM appointment a
		JOIN patient p ON p.id = a.patient_id
		JOIN employee e ON e.id = a.doctor_id
		WHERE upper(a.code) = upper($1)`, code).
		Scan(&a.Code, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName,
			&a.DateScheduled, &a.TimeScheduled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup appointment: %w", err)
	}
	return &a, nil
}
