// Package announce turns polled queue snapshots into one spoken
// announcement per change of the patient being served.
package announce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/domain/visit"
)

// Announcement is one call of a patient into consultation.
type Announcement struct {
	RecordNo    string    `json:"record_no"`
	PatientID   int64     `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	EmployeeID  int64     `json:"employee_id"`
	DoctorName  string    `json:"doctor_name"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

// Compose renders the spoken text for rec.
func Compose(rec *visit.Record) string {
	return fmt.Sprintf("Patient number %d, %s, please proceed to %s.", rec.PatientID, rec.PatientName, rec.DoctorName)
}

// Decide compares the first Current record of snapshot with the last
// announced record number. It returns the announcement to make, or false
// when the snapshot has no Current record or the same record is still
// being served.
func Decide(last string, hasLast bool, snapshot []*visit.Record) (Announcement, bool) {
	var first *visit.Record
	for _, rec := range snapshot {
		if rec != nil && rec.Status == visit.StatusCurrent {
			first = rec
			break
		}
	}
	if first == nil {
		return Announcement{}, false
	}
	if hasLast && first.RecordNo == last {
		return Announcement{}, false
	}
	return Announcement{
		RecordNo:    first.RecordNo,
		PatientID:   first.PatientID,
		PatientName: first.PatientName,
		EmployeeID:  first.EmployeeID,
		DoctorName:  first.DoctorName,
		Text:        Compose(first),
	}, true
}

const queueSize = 8

// Announcer keeps the last announced record and hands new announcements to
// a Player on its own goroutine, so a slow playback never holds up Observe.
type Announcer struct {
	player Player
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	last    string
	hasLast bool

	queue     chan Announcement
	done      chan struct{}
	closeOnce sync.Once
}

func NewAnnouncer(player Player, logger zerolog.Logger) *Announcer {
	a := &Announcer{
		player: player,
		logger: logger.With().Str("component", "announcer").Logger(),
		now:    time.Now,
		queue:  make(chan Announcement, queueSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Observe applies Decide to snapshot and queues the resulting announcement.
// Under a playback backlog the oldest pending announcement gives way, so the
// latest change is always played.
func (a *Announcer) Observe(snapshot []*visit.Record) (Announcement, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ann, ok := Decide(a.last, a.hasLast, snapshot)
	if !ok {
		return Announcement{}, false
	}
	a.last, a.hasLast = ann.RecordNo, true
	ann.At = a.now()

	select {
	case <-a.done:
		return ann, true
	default:
	}
	select {
	case a.queue <- ann:
		return ann, true
	default:
	}
	// Full: the oldest pending call is already out of date, the newest is
	// the patient being served now. Observe is the only sender and holds mu,
	// so one receive leaves room for the send.
	select {
	case stale := <-a.queue:
		a.logger.Warn().Str("record_no", stale.RecordNo).Msg("announcement queue full, dropped oldest")
	default:
	}
	select {
	case a.queue <- ann:
	default:
		a.logger.Warn().Str("record_no", ann.RecordNo).Msg("announcement queue full, dropped")
	}
	return ann, true
}

// Last returns the record number most recently announced.
func (a *Announcer) Last() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.hasLast
}

// Close stops playback. Queued announcements are discarded.
func (a *Announcer) Close() {
	a.closeOnce.Do(func() { close(a.done) })
}

func (a *Announcer) run() {
	for {
		select {
		case <-a.done:
			return
		case ann := <-a.queue:
			if err := a.player.Play(context.Background(), ann); err != nil {
				a.logger.Warn().Err(err).Str("record_no", ann.RecordNo).Msg("play announcement")
			}
		}
	}
}
