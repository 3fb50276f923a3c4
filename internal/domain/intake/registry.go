package intake

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/domain/visit"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrRegistryClosed  = errors.New("station registry closed")
)

// SinkFactory builds the event sink for a new station.
type SinkFactory func(stationID string) Sink

// Registry tracks the open stations of this server.
type Registry struct {
	checker Checker
	sinks   SinkFactory
	opts    Options
	logger  zerolog.Logger

	mu       sync.RWMutex
	stations map[string]*Station
	closed   bool
}

func NewRegistry(checker Checker, sinks SinkFactory, opts Options, logger zerolog.Logger) *Registry {
	return &Registry{
		checker:  checker,
		sinks:    sinks,
		opts:     opts,
		logger:   logger,
		stations: make(map[string]*Station),
	}
}

func (r *Registry) Create(target visit.Status) (*Station, error) {
	if target != "" && target != visit.StatusQueued && target != visit.StatusCurrent {
		return nil, visit.ErrInvalidTarget
	}
	id := uuid.New().String()
	var sink Sink
	if r.sinks != nil {
		sink = r.sinks(id)
	}
	st := NewStation(id, target, r.checker, sink, r.opts, r.logger)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		st.Close()
		return nil, ErrRegistryClosed
	}
	r.stations[id] = st
	r.mu.Unlock()
	r.logger.Info().Str("station_id", id).Str("target", string(st.target)).Msg("station opened")
	return st, nil
}

func (r *Registry) Get(id string) (*Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	if !ok {
		return nil, ErrStationNotFound
	}
	return st, nil
}

func (r *Registry) Close(id string) error {
	r.mu.Lock()
	st, ok := r.stations[id]
	delete(r.stations, id)
	r.mu.Unlock()
	if !ok {
		return ErrStationNotFound
	}
	st.Close()
	r.logger.Info().Str("station_id", id).Msg("station closed")
	return nil
}

// CloseAll tears down every station, used on shutdown. Create fails
// afterwards.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	stations := r.stations
	r.stations = make(map[string]*Station)
	r.mu.Unlock()
	for _, st := range stations {
		st.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}
