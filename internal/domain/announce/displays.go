package announce

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/platform/websocket"
)

var (
	ErrDisplayNotFound = errors.New("display not found")
	ErrDisplaysClosed  = errors.New("displays closed")
)

// DisplayInfo describes an open display.
type DisplayInfo struct {
	ID         string    `json:"id"`
	EmployeeID int64     `json:"employee_id"`
	Topic      string    `json:"topic"`
	Announce   bool      `json:"announce"`
	OpenedAt   time.Time `json:"opened_at"`
}

type display struct {
	info      DisplayInfo
	watcher   *Watcher
	announcer *Announcer
}

func (d *display) stop() {
	d.watcher.Stop()
	if d.announcer != nil {
		d.announcer.Close()
	}
}

// Displays owns the queue watchers of open display screens. Each display
// has its own poll loop and announcer, torn down together on Close.
type Displays struct {
	source    QueueSource
	publisher websocket.EventPublisher
	interval  time.Duration
	loc       *time.Location
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	displays map[string]*display
	closed   bool
}

func NewDisplays(source QueueSource, publisher websocket.EventPublisher, interval time.Duration, loc *time.Location, logger zerolog.Logger) *Displays {
	ctx, cancel := context.WithCancel(context.Background())
	return &Displays{
		source:    source,
		publisher: publisher,
		interval:  interval,
		loc:       loc,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		displays:  make(map[string]*display),
	}
}

// Open starts a display for employeeID, 0 meaning the whole clinic. It
// fails with ErrDisplaysClosed after CloseAll.
func (d *Displays) Open(employeeID int64, announce bool) (DisplayInfo, error) {
	w := NewWatcher(d.source, d.publisher, nil, employeeID, d.loc, d.logger)
	disp := &display{
		info: DisplayInfo{
			ID:         uuid.New().String(),
			EmployeeID: employeeID,
			Topic:      w.Topic(),
			Announce:   announce,
			OpenedAt:   time.Now().UTC(),
		},
		watcher: w,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return DisplayInfo{}, ErrDisplaysClosed
	}
	if announce {
		player := MultiPlayer{NewHubPlayer(d.publisher, w.Topic()), NewLogPlayer(d.logger)}
		disp.announcer = NewAnnouncer(player, d.logger)
		w.announcer = disp.announcer
	}
	d.displays[disp.info.ID] = disp
	// Started under mu so CloseAll never sees a display without its ticket.
	w.Start(d.ctx, d.interval)
	d.mu.Unlock()

	d.logger.Info().Str("display_id", disp.info.ID).Int64("employee_id", employeeID).Msg("display opened")
	return disp.info, nil
}

func (d *Displays) Close(id string) error {
	d.mu.Lock()
	disp, ok := d.displays[id]
	delete(d.displays, id)
	d.mu.Unlock()
	if !ok {
		return ErrDisplayNotFound
	}
	disp.stop()
	d.logger.Info().Str("display_id", id).Msg("display closed")
	return nil
}

func (d *Displays) List() []DisplayInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DisplayInfo, 0, len(d.displays))
	for _, disp := range d.displays {
		out = append(out, disp.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// CloseAll stops every display, used on shutdown. Open fails afterwards.
func (d *Displays) CloseAll() {
	d.cancel()
	d.mu.Lock()
	d.closed = true
	displays := d.displays
	d.displays = make(map[string]*display)
	d.mu.Unlock()
	for _, disp := range displays {
		disp.stop()
	}
}
