package visit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/platform/lock"
	"github.com/ehr/frontdesk/internal/platform/websocket"
)

// -- Mock Repository --

type mockRepo struct {
	mu        sync.Mutex
	records   map[string]*Record
	writes    []string
	setErr    error
	listErr   error
	beforeSet func(recordNo string)
}

func newMockRepo(records ...*Record) *mockRepo {
	m := &mockRepo{records: make(map[string]*Record)}
	for _, r := range records {
		m.records[r.RecordNo] = r
	}
	return m
}

func (m *mockRepo) GetVisit(_ context.Context, recordNo string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordNo]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) GetByAppointmentCode(_ context.Context, code string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if strings.EqualFold(r.AppointmentCode, code) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *mockRepo) ListQueue(_ context.Context, scope Scope) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*Record
	for _, r := range m.records {
		if r.DateScheduled != scope.Date.Format(DateLayout) || r.Status.Terminal() {
			continue
		}
		if scope.EmployeeID != 0 && r.EmployeeID != scope.EmployeeID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRepo) ListCurrentByEmployee(_ context.Context, employeeID int64) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.records {
		if r.EmployeeID == employeeID && r.Status == StatusCurrent {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) SetVisitStatus(_ context.Context, recordNo string, from, to Status) error {
	if m.beforeSet != nil {
		m.beforeSet(recordNo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	r, ok := m.records[recordNo]
	if !ok {
		return ErrRecordNotFound
	}
	if r.Status != from {
		return ErrStaleStatus
	}
	r.Status = to
	m.writes = append(m.writes, recordNo+":"+string(to))
	return nil
}

func (m *mockRepo) status(recordNo string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[recordNo].Status
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var testNow = time.Date(2024, 6, 10, 9, 5, 0, 0, time.UTC)

func newTestMachine(repo Repository) (*Machine, *recordingPublisher) {
	pub := &recordingPublisher{}
	m := NewMachine(repo, lock.NewMemoryLock(), pub, time.UTC, zerolog.Nop())
	m.now = func() time.Time { return testNow }
	return m, pub
}

func rec(no string, emp int64, status Status, tm string) *Record {
	return &Record{
		RecordNo: no, AppointmentCode: "APT-" + no, PatientID: 100, PatientName: "Siti",
		EmployeeID: emp, DoctorName: "Dr. Budi", Status: status, Type: TypeScheduled,
		DateScheduled: "2024-06-10", TimeScheduled: tm,
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]Status{
		{StatusScheduled, StatusQueued},
		{StatusScheduled, StatusCancelled},
		{StatusQueued, StatusCurrent},
		{StatusQueued, StatusCancelled},
		{StatusCurrent, StatusCompleted},
	}
	for _, p := range legal {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be legal", p[0], p[1])
		}
	}
	illegal := [][2]Status{
		{StatusQueued, StatusQueued},
		{StatusCurrent, StatusCurrent},
		{StatusScheduled, StatusCurrent},
		{StatusCurrent, StatusCancelled},
		{StatusCompleted, StatusQueued},
		{StatusCancelled, StatusScheduled},
	}
	for _, p := range illegal {
		if CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be illegal", p[0], p[1])
		}
	}
}

func TestStatus_TerminalAndValid(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() || StatusCurrent.Terminal() {
		t.Error("unexpected Terminal() result")
	}
	if Status("Paused").Valid() || !StatusQueued.Valid() {
		t.Error("unexpected Valid() result")
	}
}

func TestMachine_Admit(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusScheduled, "09:00"))
	m, pub := newTestMachine(repo)

	got, err := m.Admit(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if got.Status != StatusQueued || repo.status("R1") != StatusQueued {
		t.Fatalf("expected Queued, got %s / %s", got.Status, repo.status("R1"))
	}
	if pub.count() != 3 {
		t.Errorf("expected 3 published events, got %d", pub.count())
	}
}

func TestMachine_Admit_AlreadyQueuedNoWrite(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusQueued, "09:00"))
	m, pub := newTestMachine(repo)

	got, err := m.Admit(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	if got.Status != StatusQueued || len(repo.writes) != 0 || pub.count() != 0 {
		t.Errorf("expected no-op, got writes=%v events=%d", repo.writes, pub.count())
	}
}

func TestMachine_Admit_Elapsed(t *testing.T) {
	r := rec("R1", 7, StatusScheduled, "09:00")
	r.DateScheduled = "2024-06-09"
	m, _ := newTestMachine(newMockRepo(r))

	_, err := m.Admit(context.Background(), "R1")
	if !errors.Is(err, ErrVisitElapsed) || !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected ErrVisitElapsed, got %v", err)
	}
}

func TestMachine_Admit_FromTerminal(t *testing.T) {
	m, _ := newTestMachine(newMockRepo(rec("R1", 7, StatusCompleted, "09:00")))
	if _, err := m.Admit(context.Background(), "R1"); !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMachine_Admit_NotFound(t *testing.T) {
	m, _ := newTestMachine(newMockRepo())
	if _, err := m.Admit(context.Background(), "nope"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestMachine_Begin(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusQueued, "09:00"))
	m, _ := newTestMachine(repo)

	got, err := m.Begin(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if got.Status != StatusCurrent {
		t.Errorf("expected Current, got %s", got.Status)
	}
}

func TestMachine_Begin_RefusesSecondCurrent(t *testing.T) {
	repo := newMockRepo(
		rec("R1", 7, StatusCurrent, "08:00"),
		rec("R2", 7, StatusQueued, "09:00"),
	)
	m, pub := newTestMachine(repo)

	_, err := m.Begin(context.Background(), "R2")
	if !errors.Is(err, ErrCurrentVisitExists) || !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected ErrCurrentVisitExists, got %v", err)
	}
	if repo.status("R1") != StatusCurrent || repo.status("R2") != StatusQueued {
		t.Errorf("statuses changed: R1=%s R2=%s", repo.status("R1"), repo.status("R2"))
	}
	if len(repo.writes) != 0 || pub.count() != 0 {
		t.Error("expected no write and no event")
	}
}

func TestMachine_Begin_OtherDoctorUnaffected(t *testing.T) {
	repo := newMockRepo(
		rec("R1", 8, StatusCurrent, "08:00"),
		rec("R2", 7, StatusQueued, "09:00"),
	)
	m, _ := newTestMachine(repo)
	if _, err := m.Begin(context.Background(), "R2"); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
}

func TestMachine_Begin_LockHeld(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusQueued, "09:00"))
	locker := lock.NewMemoryLock()
	locker.Lock(context.Background(), "visit-begin:7", time.Minute)
	m := NewMachine(repo, locker, nil, time.UTC, zerolog.Nop())
	m.now = func() time.Time { return testNow }

	if _, err := m.Begin(context.Background(), "R1"); !errors.Is(err, ErrDoctorBusy) {
		t.Fatalf("expected ErrDoctorBusy, got %v", err)
	}
}

func TestMachine_Begin_ReleasesLock(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusQueued, "09:00"))
	locker := lock.NewMemoryLock()
	m := NewMachine(repo, locker, nil, time.UTC, zerolog.Nop())

	m.Begin(context.Background(), "R1")
	if _, ok, _ := locker.Lock(context.Background(), "visit-begin:7", time.Minute); !ok {
		t.Error("expected lock to be released after Begin")
	}
}

func TestMachine_Begin_ConcurrentOnlyOneWins(t *testing.T) {
	repo := newMockRepo(
		rec("R1", 7, StatusQueued, "09:00"),
		rec("R2", 7, StatusQueued, "09:30"),
	)
	m, _ := newTestMachine(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, no := range []string{"R1", "R2"} {
		wg.Add(1)
		go func(i int, no string) {
			defer wg.Done()
			_, errs[i] = m.Begin(context.Background(), no)
		}(i, no)
	}
	wg.Wait()

	current := 0
	for _, no := range []string{"R1", "R2"} {
		if repo.status(no) == StatusCurrent {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one Current, got %d (errs %v)", current, errs)
	}
	if (errs[0] == nil) == (errs[1] == nil) {
		t.Errorf("expected exactly one error, got %v", errs)
	}
}

func TestMachine_StaleWrite(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusQueued, "09:00"))
	repo.beforeSet = func(no string) {
		repo.mu.Lock()
		repo.records[no].Status = StatusCancelled
		repo.mu.Unlock()
	}
	m, pub := newTestMachine(repo)

	_, err := m.Begin(context.Background(), "R1")
	if !errors.Is(err, ErrStaleStatus) || !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
	if pub.count() != 0 {
		t.Error("expected no event after failed write")
	}
}

func TestMachine_WriteFailureNotApplied(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusCurrent, "09:00"))
	repo.setErr = errors.New("connection reset")
	m, pub := newTestMachine(repo)

	if _, err := m.Complete(context.Background(), "R1"); err == nil {
		t.Fatal("expected error")
	}
	if repo.status("R1") != StatusCurrent || pub.count() != 0 {
		t.Error("expected status unchanged and no event")
	}
}

func TestMachine_Complete(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusCurrent, "09:00"))
	m, _ := newTestMachine(repo)

	got, err := m.Complete(context.Background(), "R1")
	if err != nil || got.Status != StatusCompleted {
		t.Fatalf("Complete() = %v, %v", got, err)
	}
	if _, err := m.Complete(context.Background(), "R1"); !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected completed record to stay closed, got %v", err)
	}
}

func TestMachine_Resume(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusCurrent, "09:00"), rec("R2", 7, StatusQueued, "09:30"))
	m, pub := newTestMachine(repo)

	got, err := m.Resume(context.Background(), "R1")
	if err != nil || got.Status != StatusCurrent {
		t.Fatalf("Resume() = %v, %v", got, err)
	}
	if len(repo.writes) != 0 || pub.count() != 0 {
		t.Error("expected Resume to be a no-op")
	}
	if _, err := m.Resume(context.Background(), "R2"); !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected conflict for non-current record, got %v", err)
	}
}

func TestMachine_Cancel(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusScheduled, "09:00"), rec("R2", 7, StatusCurrent, "09:30"))
	m, _ := newTestMachine(repo)

	if _, err := m.Cancel(context.Background(), "R1"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if _, err := m.Cancel(context.Background(), "R2"); !errors.Is(err, ErrTransitionConflict) {
		t.Fatalf("expected Current record not cancellable, got %v", err)
	}
}

func TestMachine_AdmitByAppointment(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusScheduled, "09:00"))
	m, _ := newTestMachine(repo)

	got, err := m.AdmitByAppointment(context.Background(), "apt-r1", StatusQueued)
	if err != nil {
		t.Fatalf("AdmitByAppointment() error: %v", err)
	}
	if got.Status != StatusQueued {
		t.Errorf("expected Queued, got %s", got.Status)
	}
}

func TestMachine_AdmitByAppointment_Current(t *testing.T) {
	repo := newMockRepo(rec("R1", 7, StatusScheduled, "09:00"))
	m, _ := newTestMachine(repo)

	got, err := m.AdmitByAppointment(context.Background(), "APT-R1", StatusCurrent)
	if err != nil {
		t.Fatalf("AdmitByAppointment() error: %v", err)
	}
	if got.Status != StatusCurrent {
		t.Errorf("expected Current, got %s", got.Status)
	}
	if len(repo.writes) != 2 {
		t.Errorf("expected Queued then Current writes, got %v", repo.writes)
	}
}

func TestMachine_AdmitByAppointment_InvalidTarget(t *testing.T) {
	m, _ := newTestMachine(newMockRepo())
	if _, err := m.AdmitByAppointment(context.Background(), "X", StatusCompleted); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestMachine_Queue(t *testing.T) {
	repo := newMockRepo(
		rec("R1", 7, StatusQueued, "10:00"),
		rec("R2", 7, StatusCurrent, "09:00"),
		rec("R3", 8, StatusScheduled, "08:00"),
	)
	m, _ := newTestMachine(repo)

	b, err := m.Queue(context.Background(), Scope{EmployeeID: 7, Date: testNow})
	if err != nil {
		t.Fatalf("Queue() error: %v", err)
	}
	if len(b.NowServing) != 1 || len(b.Waiting) != 1 || len(b.Scheduled) != 0 {
		t.Errorf("unexpected board: %+v", b)
	}
}

func TestRecord_Scheduled(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	r := rec("R1", 7, StatusQueued, "14:30")
	at, err := r.Scheduled(loc)
	if err != nil {
		t.Fatalf("Scheduled() error: %v", err)
	}
	if !at.Equal(time.Date(2024, 6, 10, 14, 30, 0, 0, loc)) {
		t.Errorf("unexpected instant %s", at)
	}
}
