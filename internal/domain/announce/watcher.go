package announce

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/domain/visit"
	"github.com/ehr/frontdesk/internal/platform/polling"
	"github.com/ehr/frontdesk/internal/platform/websocket"
)

// QueueSource reads the board of one scope. *visit.Machine implements it.
type QueueSource interface {
	Queue(ctx context.Context, scope visit.Scope) (visit.Board, error)
}

// Watcher polls one queue scope, publishes each board and feeds the
// now-serving group to its announcer.
type Watcher struct {
	source     QueueSource
	publisher  websocket.EventPublisher
	announcer  *Announcer
	employeeID int64
	loc        *time.Location
	now        func() time.Time
	logger     zerolog.Logger

	ticket *polling.Ticket
}

// NewWatcher builds a watcher for employeeID, or the whole clinic when it
// is 0. announcer may be nil for a board-only display.
func NewWatcher(source QueueSource, publisher websocket.EventPublisher, announcer *Announcer, employeeID int64, loc *time.Location, logger zerolog.Logger) *Watcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Watcher{
		source:     source,
		publisher:  publisher,
		announcer:  announcer,
		employeeID: employeeID,
		loc:        loc,
		now:        time.Now,
		logger:     logger.With().Str("component", "queue-watcher").Int64("employee_id", employeeID).Logger(),
	}
}

func (w *Watcher) Topic() string { return websocket.QueueTopic(w.employeeID) }

func (w *Watcher) Start(ctx context.Context, interval time.Duration) {
	w.ticket = polling.Start(ctx, interval, w.poll)
}

// Stop ends polling and waits for a running poll to finish.
func (w *Watcher) Stop() {
	if w.ticket != nil {
		w.ticket.Stop()
	}
}

func (w *Watcher) poll(ctx context.Context) {
	scope := visit.Scope{EmployeeID: w.employeeID, Date: w.now().In(w.loc)}
	board, err := w.source.Queue(ctx, scope)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("poll queue")
		}
		return
	}

	if w.publisher != nil {
		ev, err := websocket.NewEvent(w.Topic(), "queue.board", board)
		if err == nil {
			err = w.publisher.Publish(ctx, ev)
		}
		if err != nil {
			w.logger.Warn().Err(err).Msg("publish queue board")
		}
	}
	if w.announcer != nil {
		w.announcer.Observe(board.NowServing)
	}
}
