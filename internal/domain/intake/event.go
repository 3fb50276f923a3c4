package intake

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/domain/admission"
	"github.com/ehr/frontdesk/internal/platform/websocket"
)

type EventKind string

const (
	EventResult   EventKind = "result"
	EventCooldown EventKind = "cooldown"
	EventDropped  EventKind = "dropped"
	EventCleared  EventKind = "cleared"
)

// Reasons carried by dropped events.
const (
	DropEmpty     = "empty"
	DropDuplicate = "duplicate"
	DropCooldown  = "cooldown"
	DropBusy      = "busy"
)

// Event is what a station reports to its operator screen.
type Event struct {
	Kind      EventKind          `json:"kind"`
	StationID string             `json:"station_id"`
	Code      string             `json:"code,omitempty"`
	Outcome   *admission.Outcome `json:"outcome,omitempty"`
	Error     string             `json:"error,omitempty"`
	Remaining int                `json:"remaining"`
	Reason    string             `json:"reason,omitempty"`
	At        time.Time          `json:"at"`
}

// Sink receives station events. Emit is called with the station locked and
// must not block or call back into the station.
type Sink interface {
	Emit(ev Event)
}

type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type hubSink struct {
	publisher websocket.EventPublisher
	topic     string
	logger    zerolog.Logger
}

// NewHubSink publishes station events as "station.<kind>" on the station's
// websocket topic.
func NewHubSink(publisher websocket.EventPublisher, stationID string, logger zerolog.Logger) Sink {
	return &hubSink{
		publisher: publisher,
		topic:     websocket.StationTopic(stationID),
		logger:    logger,
	}
}

func (s *hubSink) Emit(ev Event) {
	msg, err := websocket.NewEvent(s.topic, "station."+string(ev.Kind), ev)
	if err == nil {
		err = s.publisher.Publish(context.Background(), msg)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", s.topic).Msg("publish station event")
	}
}
