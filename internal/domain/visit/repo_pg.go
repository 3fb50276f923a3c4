package visit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/frontdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const recordCols = `v.record_no, COALESCE(v.appointment_code, ''), v.patient_id, p.name,
	v.employee_id, e.name, v.visit_status, v.visit_type,
	to_char(v.date_scheduled, 'YYYY-MM-DD'), to_char(v.time_scheduled, 'HH24:MI'),
	v.visit_purpose_title, v.visit_chief_complaint`

const recordFrom = ` FROM visit_record v
	JOIN patient p ON p.id = v.patient_id
	JOIN employee e ON e.id = v.employee_id`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.RecordNo, &rec.AppointmentCode, &rec.PatientID, &rec.PatientName,
		&rec.EmployeeID, &rec.DoctorName, &rec.Status, &rec.Type,
		&rec.DateScheduled, &rec.TimeScheduled,
		&rec.PurposeTitle, &rec.ChiefComplaint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) GetVisit(ctx context.Context, recordNo string) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+recordFrom+` WHERE v.record_no = $1`, recordNo))
}

func (r *repoPG) GetByAppointmentCode(ctx context.Context, code string) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+recordFrom+`
		WHERE upper(v.appointment_code) = upper($1)
		ORDER BY v.date_scheduled DESC LIMIT 1`, code))
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) ListQueue(ctx context.Context, scope Scope) ([]*Record, error) {
	items, err := r.list(ctx, `SELECT `+recordCols+recordFrom+`
		WHERE v.date_scheduled = $1
		  AND ($2::bigint = 0 OR v.employee_id = $2)
		  AND v.visit_status NOT IN ('Completed', 'Cancelled')
		ORDER BY v.time_scheduled, v.record_no`, scope.Date, scope.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return items, nil
}

func (r *repoPG) ListCurrentByEmployee(ctx context.Context, employeeID int64) ([]*Record, error) {
	items, err := r.list(ctx, `SELECT `+recordCols+recordFrom+`
		WHERE v.employee_id = $1 AND v.visit_status = 'Current'`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list current visits: %w", err)
	}
	return items, nil
}

func (r *repoPG) SetVisitStatus(ctx context.Context, recordNo string, from, to Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_record SET visit_status = $3, updated_at = NOW()
		WHERE record_no = $1 AND visit_status = $2`, recordNo, from, to)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCurrentVisitExists
		}
		return fmt.Errorf("set visit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}
