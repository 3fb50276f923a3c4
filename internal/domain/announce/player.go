package announce

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/platform/websocket"
)

// Player produces an announcement. Playback is fire-and-forget from the
// announcer's point of view; errors are only logged.
type Player interface {
	Play(ctx context.Context, ann Announcement) error
}

// HubPlayer sends a queue.announce event to display screens, which speak
// the text.
type HubPlayer struct {
	publisher websocket.EventPublisher
	topic     string
}

func NewHubPlayer(publisher websocket.EventPublisher, topic string) *HubPlayer {
	return &HubPlayer{publisher: publisher, topic: topic}
}

func (p *HubPlayer) Play(ctx context.Context, ann Announcement) error {
	ev, err := websocket.NewEvent(p.topic, "queue.announce", ann)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, ev)
}

type LogPlayer struct {
	logger zerolog.Logger
}

func NewLogPlayer(logger zerolog.Logger) *LogPlayer {
	return &LogPlayer{logger: logger}
}

func (p *LogPlayer) Play(_ context.Context, ann Announcement) error {
	p.logger.Info().Str("record_no", ann.RecordNo).Int64("employee_id", ann.EmployeeID).
		Str("text", ann.Text).Msg("announcement")
	return nil
}

// MultiPlayer plays on every player and joins their errors.
type MultiPlayer []Player

func (m MultiPlayer) Play(ctx context.Context, ann Announcement) error {
	var errs []error
	for _, p := range m {
		if err := p.Play(ctx, ann); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
