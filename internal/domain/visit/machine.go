package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/platform/lock"
	"github.com/ehr/frontdesk/internal/platform/websocket"
)

const beginLockTTL = 10 * time.Second

// Machine applies visit status transitions. Every transition re-reads the
// record, checks it, and writes it with a compare-and-set on the old status;
// nothing is reported or published until that write succeeds.
type Machine struct {
	repo      Repository
	locker    lock.Locker
	publisher websocket.EventPublisher
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

func NewMachine(repo Repository, locker lock.Locker, publisher websocket.EventPublisher, loc *time.Location, logger zerolog.Logger) *Machine {
	if locker == nil {
		locker = lock.NewMemoryLock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
		logger:    logger.With().Str("component", "visit-machine").Logger(),
	}
}

func (m *Machine) today() string {
	return m.now().In(m.loc).Format(DateLayout)
}

func (m *Machine) Get(ctx context.Context, recordNo string) (*Record, error) {
	return m.repo.GetVisit(ctx, recordNo)
}

// Queue reads a scope and groups it for display.
func (m *Machine) Queue(ctx context.Context, scope Scope) (Board, error) {
	records, err := m.repo.ListQueue(ctx, scope)
	if err != nil {
		return Board{}, err
	}
	return BuildBoard(records), nil
}

// Admit moves a Scheduled record to Queued. A record that is already
// Queued is returned unchanged without a write.
func (m *Machine) Admit(ctx context.Context, recordNo string) (*Record, error) {
	rec, err := m.repo.GetVisit(ctx, recordNo)
	if err != nil {
		return nil, err
	}
	return m.admit(ctx, rec)
}

func (m *Machine) admit(ctx context.Context, rec *Record) (*Record, error) {
	if rec.Status != StatusScheduled && rec.Status != StatusQueued {
		return nil, m.illegal(rec, StatusQueued)
	}
	if rec.DateScheduled < m.today() {
		return nil, fmt.Errorf("admit %s: %w", rec.RecordNo, ErrVisitElapsed)
	}
	if rec.Status == StatusQueued {
		return rec, nil
	}
	return m.apply(ctx, rec, StatusQueued)
}

// AdmitByAppointment admits the visit booked under code into target, which
// is Queued or Current.
func (m *Machine) AdmitByAppointment(ctx context.Context, code string, target Status) (*Record, error) {
	if target != StatusQueued && target != StatusCurrent {
		return nil, ErrInvalidTarget
	}
	rec, err := m.repo.GetByAppointmentCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if target == StatusCurrent && rec.Status == StatusCurrent {
		return rec, nil
	}

	rec, err = m.admit(ctx, rec)
	if err != nil || target == StatusQueued {
		return rec, err
	}
	return m.begin(ctx, rec)
}

// Begin moves a Queued record to Current. It refuses while another record
// of the same doctor is Current; the operator completes that one first.
func (m *Machine) Begin(ctx context.Context, recordNo string) (*Record, error) {
	rec, err := m.repo.GetVisit(ctx, recordNo)
	if err != nil {
		return nil, err
	}
	return m.begin(ctx, rec)
}

func (m *Machine) begin(ctx context.Context, rec *Record) (*Record, error) {
	if !CanTransition(rec.Status, StatusCurrent) {
		return nil, m.illegal(rec, StatusCurrent)
	}

	key := fmt.Sprintf("visit-begin:%d", rec.EmployeeID)
	token, ok, err := m.locker.Lock(ctx, key, beginLockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock doctor %d: %w", rec.EmployeeID, err)
	}
	if !ok {
		return nil, ErrDoctorBusy
	}
	defer func() {
		if err := m.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("release lock")
		}
	}()

	current, err := m.repo.ListCurrentByEmployee(ctx, rec.EmployeeID)
	if err != nil {
		return nil, err
	}
	for _, other := range current {
		if other.RecordNo != rec.RecordNo {
			return nil, fmt.Errorf("begin %s: record %s: %w", rec.RecordNo, other.RecordNo, ErrCurrentVisitExists)
		}
	}
	return m.apply(ctx, rec, StatusCurrent)
}

func (m *Machine) Complete(ctx context.Context, recordNo string) (*Record, error) {
	return m.simple(ctx, recordNo, StatusCompleted)
}

func (m *Machine) Cancel(ctx context.Context, recordNo string) (*Record, error) {
	return m.simple(ctx, recordNo, StatusCancelled)
}

// Resume re-enters a Current consultation without changing its status.
func (m *Machine) Resume(ctx context.Context, recordNo string) (*Record, error) {
	rec, err := m.repo.GetVisit(ctx, recordNo)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusCurrent {
		return nil, m.illegal(rec, StatusCurrent)
	}
	return rec, nil
}

func (m *Machine) simple(ctx context.Context, recordNo string, to Status) (*Record, error) {
	rec, err := m.repo.GetVisit(ctx, recordNo)
	if err != nil {
		return nil, err
	}
	if !CanTransition(rec.Status, to) {
		return nil, m.illegal(rec, to)
	}
	return m.apply(ctx, rec, to)
}

func (m *Machine) illegal(rec *Record, to Status) error {
	return fmt.Errorf("%s: %s -> %s: %w", rec.RecordNo, rec.Status, to, ErrTransitionConflict)
}

// apply writes the transition and only then returns the updated copy.
func (m *Machine) apply(ctx context.Context, rec *Record, to Status) (*Record, error) {
	from := rec.Status
	if err := m.repo.SetVisitStatus(ctx, rec.RecordNo, from, to); err != nil {
		return nil, fmt.Errorf("%s: %s -> %s: %w", rec.RecordNo, from, to, err)
	}

	updated := *rec
	updated.Status = to
	m.logger.Info().Str("record_no", rec.RecordNo).Int64("employee_id", rec.EmployeeID).
		Str("from", string(from)).Str("to", string(to)).Msg("visit status changed")
	m.publish(ctx, StatusChange{RecordNo: rec.RecordNo, EmployeeID: rec.EmployeeID, From: from, To: to, At: m.now().UTC()})
	return &updated, nil
}

func (m *Machine) publish(ctx context.Context, change StatusChange) {
	if m.publisher == nil {
		return
	}
	topics := []string{
		websocket.VisitTopic(change.RecordNo),
		websocket.QueueTopic(change.EmployeeID),
		websocket.QueueTopic(0),
	}
	for _, topic := range topics {
		ev, err := websocket.NewEvent(topic, "visit.status", change)
		if err == nil {
			err = m.publisher.Publish(ctx, ev)
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("topic", topic).Msg("publish visit status")
		}
	}
}
