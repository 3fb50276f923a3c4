package timesheet

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/frontdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) ListSlots(ctx context.Context, employeeID int64, from, to time.Time) ([]Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT employee_id, date, time FROM timesheet
		WHERE employee_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, time`, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query timesheet: %w", err)
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.EmployeeID, &s.Date, &s.Time); err != nil {
			return nil, fmt.Errorf("scan timesheet row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func columns(slots []Slot) ([]int64, []time.Time, []string) {
	emps := make([]int64, len(slots))
	dates := make([]time.Time, len(slots))
	times := make([]string, len(slots))
	for i, s := range slots {
		emps[i], dates[i], times[i] = s.EmployeeID, s.Date, s.Time
	}
	return emps, dates, times
}

func (r *repoPG) SaveSlots(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}
	emps, dates, times := columns(slots)
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO timesheet (employee_id, date, time)
		SELECT * FROM unnest($1::bigint[], $2::date[], $3::text[])
		ON CONFLICT (employee_id, date, time) DO NOTHING`, emps, dates, times)
	if err != nil {
		return fmt.Errorf("insert timesheet slots: %w", err)
	}
	return nil
}

func (r *repoPG) DeleteSlots(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}
	emps, dates, times := columns(slots)
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM timesheet t
		USING unnest($1::bigint[], $2::date[], $3::text[]) AS d(employee_id, date, time)
		WHERE t.employee_id = d.employee_id AND t.date = d.date AND t.time = d.time`, emps, dates, times)
	if err != nil {
		return fmt.Errorf("delete timesheet slots: %w", err)
	}
	return nil
}
